package cmd

import (
	"github.com/fatih/color"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatStatusWithColor(status assessment.Status) string {
	switch status {
	case assessment.StatusPass:
		return colorSuccess(string(status))
	case assessment.StatusFail:
		return colorError(string(status))
	default:
		return colorWarn(string(status))
	}
}

func formatStateWithColor(state assessment.RunState) string {
	switch state {
	case assessment.RunCompleted:
		return colorSuccess(string(state))
	case assessment.RunFailed:
		return colorError(string(state))
	default:
		return string(state)
	}
}
