package discovery

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type formInput struct {
	name     string
	typ      string
	value    string
	required bool
	pattern  string
}

type form struct {
	action  string
	method  string
	enctype string
	inputs  []formInput
}

type pageContent struct {
	links   []string
	forms   []form
	scripts []string
}

// parseHTML walks the token stream of body collecting links, forms with
// their fields, and script sources. Malformed markup is tolerated.
func parseHTML(body []byte) pageContent {
	var out pageContent
	var current *form

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if current != nil {
				out.forms = append(out.forms, *current)
			}
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.A, atom.Area:
				if href := attr(tok, "href"); href != "" {
					out.links = append(out.links, href)
				}
			case atom.Iframe, atom.Frame:
				if src := attr(tok, "src"); src != "" {
					out.links = append(out.links, src)
				}
			case atom.Script:
				if src := attr(tok, "src"); src != "" {
					out.scripts = append(out.scripts, src)
				}
			case atom.Form:
				if current != nil {
					out.forms = append(out.forms, *current)
				}
				current = &form{
					action:  attr(tok, "action"),
					method:  strings.ToUpper(strings.TrimSpace(attr(tok, "method"))),
					enctype: strings.ToLower(attr(tok, "enctype")),
				}
				if current.method == "" {
					current.method = "GET"
				}
			case atom.Input, atom.Textarea, atom.Select:
				if current == nil {
					continue
				}
				name := attr(tok, "name")
				if name == "" {
					continue
				}
				typ := strings.ToLower(attr(tok, "type"))
				if tok.DataAtom != atom.Input {
					typ = tok.Data
				}
				if typ == "" {
					typ = "text"
				}
				if typ == "submit" || typ == "button" || typ == "image" || typ == "reset" {
					continue
				}
				_, required := attrOK(tok, "required")
				current.inputs = append(current.inputs, formInput{
					name:     name,
					typ:      typ,
					value:    attr(tok, "value"),
					required: required,
					pattern:  attr(tok, "pattern"),
				})
			}
		case html.EndTagToken:
			tok := z.Token()
			if tok.DataAtom == atom.Form && current != nil {
				out.forms = append(out.forms, *current)
				current = nil
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	v, _ := attrOK(tok, key)
	return v
}

func attrOK(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val), true
		}
	}
	return "", false
}
