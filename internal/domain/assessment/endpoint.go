package assessment

import "sort"

// Tag classifies a discovered endpoint by structural signals.
type Tag string

const (
	TagPage         Tag = "page"
	TagForm         Tag = "form"
	TagLogin        Tag = "login"
	TagPassword     Tag = "password"
	TagUpload       Tag = "upload"
	TagJSONAPI      Tag = "json-api"
	TagXMLAPI       Tag = "xml-api"
	TagVersionedAPI Tag = "versioned-api"
	TagScript       Tag = "script"

	// TagSensitiveFile marks a well-known sensitive file (.env, VCS
	// metadata, dumps, backups) that answered without an error.
	TagSensitiveFile Tag = "sensitive-file"
)

// ParamSource records where a parameter was found.
type ParamSource string

const (
	ParamQuery ParamSource = "query"
	ParamBody  ParamSource = "body"
	ParamPath  ParamSource = "path"
)

// Param is one injectable parameter of an endpoint.
type Param struct {
	Name   string      `json:"name"`
	Type   string      `json:"type"`
	Source ParamSource `json:"source"`
	// Value is the default value seen during discovery, if any.
	Value string `json:"value,omitempty"`
}

// Endpoint is a discovered, classified resource eligible for probing.
type Endpoint struct {
	URL         string  `json:"url"`
	Method      string  `json:"method"`
	Tags        []Tag   `json:"tags"`
	Params      []Param `json:"params,omitempty"`
	Depth       int     `json:"depth"`
	ContentType string  `json:"content_type,omitempty"`
	Status      int     `json:"status,omitempty"`
	// Enctype is set for forms.
	Enctype string `json:"enctype,omitempty"`
}

// HasTag reports whether the endpoint carries tag.
func (e Endpoint) HasTag(tag Tag) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the endpoint carries at least one of tags.
// An empty tag list matches every endpoint.
func (e Endpoint) HasAnyTag(tags ...Tag) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if e.HasTag(tag) {
			return true
		}
	}
	return false
}

// Key identifies the endpoint within a catalogue.
func (e Endpoint) Key() string { return e.Method + " " + e.URL }

// AddTag adds tag once, keeping tags sorted.
func (e *Endpoint) AddTag(tag Tag) {
	if e.HasTag(tag) {
		return
	}
	e.Tags = append(e.Tags, tag)
	sort.Slice(e.Tags, func(i, j int) bool { return e.Tags[i] < e.Tags[j] })
}

func (e Endpoint) clone() Endpoint {
	out := e
	out.Tags = append([]Tag(nil), e.Tags...)
	out.Params = append([]Param(nil), e.Params...)
	return out
}

// CrawlFailure records a resource that could not be fetched.
type CrawlFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Catalogue is the bounded, ordered endpoint set produced by discovery.
type Catalogue struct {
	Target       string         `json:"target"`
	DepthLimit   int            `json:"depth_limit"`
	PageLimit    int            `json:"page_limit"`
	Endpoints    []Endpoint     `json:"endpoints"`
	Failures     []CrawlFailure `json:"failures,omitempty"`
	PagesFetched int            `json:"pages_fetched"`
	Truncated    bool           `json:"truncated"`
	// ThirdPartyScripts lists off-site script sources seen while crawling.
	ThirdPartyScripts []string `json:"third_party_scripts,omitempty"`
	// APISpec is the URL of the OpenAPI document found, if any.
	APISpec string `json:"api_spec,omitempty"`
}

// Len returns the number of endpoints.
func (c *Catalogue) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Endpoints)
}

// Select returns copies of the endpoints carrying any of tags, in
// discovery order.
func (c *Catalogue) Select(tags ...Tag) []Endpoint {
	if c == nil {
		return nil
	}
	out := make([]Endpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.HasAnyTag(tags...) {
			out = append(out, ep.clone())
		}
	}
	return out
}

// HasTag reports whether any endpoint carries tag.
func (c *Catalogue) HasTag(tag Tag) bool {
	if c == nil {
		return false
	}
	for _, ep := range c.Endpoints {
		if ep.HasTag(tag) {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (c *Catalogue) Snapshot() *Catalogue {
	if c == nil {
		return nil
	}
	out := *c
	out.Endpoints = make([]Endpoint, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		out.Endpoints[i] = ep.clone()
	}
	out.Failures = append([]CrawlFailure(nil), c.Failures...)
	out.ThirdPartyScripts = append([]string(nil), c.ThirdPartyScripts...)
	return &out
}
