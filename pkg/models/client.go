package models

import "strings"

// Client is the measuring host as described by the primary directory document.
type Client struct {
	IP        string              `json:"ip"`
	ISP       string              `json:"isp,omitempty"`
	Lat       float64             `json:"lat"`
	Lon       float64             `json:"lon"`
	IgnoreIDs map[string]struct{} `json:"-"`
}

// ParseIgnoreIDs turns a comma separated id list into a set. Blank entries are skipped.
func ParseIgnoreIDs(list string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// Ignores reports whether the server id is excluded for this client.
func (c Client) Ignores(id string) bool {
	_, ok := c.IgnoreIDs[id]
	return ok
}
