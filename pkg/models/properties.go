package models

// Block properties are stored as an open JSONMap, but each block type has a
// declared field set the editor understands. Properties decodes the map into
// that declared set and keeps every unrecognized key in Extra so documents
// written by a newer client survive a round trip through an older server.

// Properties is the decoded form of a block's property document.
type Properties struct {
	// Text is the body for paragraph, heading, list, todo, quote and code
	// blocks.
	Text string
	// Title is set on page and database blocks.
	Title string
	// Checked is set on todo blocks.
	Checked bool
	// URL and Caption are set on image blocks.
	URL     string
	Caption string
	// Language is set on code blocks.
	Language string
	// Level is the heading depth, redundant with the heading_N type but
	// kept by the editor for "turn into" conversions.
	Level int
	// Extra holds keys outside the declared set, untouched.
	Extra JSONMap
}

var declaredKeys = map[string]struct{}{
	"text":     {},
	"title":    {},
	"checked":  {},
	"url":      {},
	"caption":  {},
	"language": {},
	"level":    {},
}

// DecodeProperties interprets an open property map against the declared
// schema. Keys with unexpected value types are treated as unknown and land
// in Extra rather than failing the decode.
func DecodeProperties(m JSONMap) Properties {
	var p Properties
	for k, v := range m {
		switch k {
		case "text":
			if s, ok := v.(string); ok {
				p.Text = s
				continue
			}
		case "title":
			if s, ok := v.(string); ok {
				p.Title = s
				continue
			}
		case "checked":
			if b, ok := v.(bool); ok {
				p.Checked = b
				continue
			}
		case "url":
			if s, ok := v.(string); ok {
				p.URL = s
				continue
			}
		case "caption":
			if s, ok := v.(string); ok {
				p.Caption = s
				continue
			}
		case "language":
			if s, ok := v.(string); ok {
				p.Language = s
				continue
			}
		case "level":
			// JSON numbers decode as float64.
			if f, ok := v.(float64); ok {
				p.Level = int(f)
				continue
			}
		}
		if p.Extra == nil {
			p.Extra = make(JSONMap)
		}
		p.Extra[k] = v
	}
	return p
}

// Encode rebuilds the open map, declared fields first, then Extra. Zero
// declared fields are omitted so the stored document only carries what the
// block actually uses.
func (p Properties) Encode() JSONMap {
	m := make(JSONMap, len(p.Extra)+4)
	for k, v := range p.Extra {
		if _, declared := declaredKeys[k]; declared {
			continue
		}
		m[k] = v
	}
	if p.Text != "" {
		m["text"] = p.Text
	}
	if p.Title != "" {
		m["title"] = p.Title
	}
	if p.Checked {
		m["checked"] = p.Checked
	}
	if p.URL != "" {
		m["url"] = p.URL
	}
	if p.Caption != "" {
		m["caption"] = p.Caption
	}
	if p.Language != "" {
		m["language"] = p.Language
	}
	if p.Level != 0 {
		m["level"] = p.Level
	}
	return m
}
