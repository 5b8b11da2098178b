package webdav

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// propfindBody requests the two properties listing needs: whether the
// resource is a collection and its ETag.
const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
    <d:getetag/>
  </d:prop>
</d:propfind>`

// Entry is one child of a listed collection.
type Entry struct {
	Name  string // last path segment, URL-decoded
	IsDir bool
	ETag  string
}

// multistatus mirrors the RFC 4918 207 response body. Only the fields
// listing needs are mapped; servers send more.
type multistatus struct {
	XMLName   xml.Name     `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href     string    `xml:"href"`
	Propstat []davStat `xml:"propstat"`
}

type davStat struct {
	Status string  `xml:"status"`
	Prop   davProp `xml:"prop"`
}

type davProp struct {
	ResourceType davResourceType `xml:"resourcetype"`
	ETag         string          `xml:"getetag"`
}

type davResourceType struct {
	Collection *struct{} `xml:"collection"`
}

// parseMultistatus extracts the direct children from a PROPFIND
// depth-1 response. selfHref is the request path as the server echoes
// it; that entry describes the collection itself and is dropped.
func parseMultistatus(body []byte, selfHref string) ([]Entry, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("decoding multistatus: %w", err)
	}

	self := strings.Trim(selfHref, "/")
	entries := make([]Entry, 0, len(ms.Responses))

	for _, resp := range ms.Responses {
		href, err := url.PathUnescape(resp.Href)
		if err != nil {
			href = resp.Href
		}

		trimmed := strings.Trim(href, "/")
		if trimmed == self || trimmed == "" {
			continue
		}

		prop, ok := okPropstat(resp.Propstat)
		if !ok {
			continue
		}

		entries = append(entries, Entry{
			Name:  path.Base(trimmed),
			IsDir: prop.ResourceType.Collection != nil,
			ETag:  prop.ETag,
		})
	}

	return entries, nil
}

// okPropstat picks the propstat block with a 200 status. Servers split
// found and not-found properties into separate blocks.
func okPropstat(stats []davStat) (davProp, bool) {
	for _, st := range stats {
		if strings.Contains(st.Status, "200") {
			return st.Prop, true
		}
	}

	return davProp{}, false
}
