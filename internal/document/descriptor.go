package document

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// StateParam is the query parameter that carries the open request.
const StateParam = "state"

const actionOpen = "open"

// Descriptor is the open request handed to the editor by the drive UI.
type Descriptor struct {
	IDs       []string `json:"ids"`
	Action    string   `json:"action"`
	UserID    string   `json:"userId,omitempty"`
	ExportIDs []string `json:"exportIds,omitempty"`
}

// ParseDescriptor decodes the JSON value of the state parameter.
func ParseDescriptor(raw string) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("parse state parameter: %w", err)
	}
	return &d, nil
}

// DescriptorFromURL extracts the open request from u. It returns (nil, nil)
// when u carries no state parameter, which means local mode.
func DescriptorFromURL(u *url.URL) (*Descriptor, error) {
	if u == nil {
		return nil, nil
	}
	raw := u.Query().Get(StateParam)
	if raw == "" {
		return nil, nil
	}
	return ParseDescriptor(raw)
}

// ParseOpenRequest resolves the open request carried by href. It returns
// (nil, nil) for local mode and a FileError when the request cannot be
// opened.
func ParseOpenRequest(href string) (*Descriptor, *FileError) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, stateError(err)
	}
	d, err := DescriptorFromURL(u)
	if err != nil {
		return nil, stateError(err)
	}
	if d == nil {
		return nil, nil
	}
	if ferr := d.Validate(); ferr != nil {
		return nil, ferr
	}
	return d, nil
}

func stateError(err error) *FileError {
	return &FileError{
		Title:   "Invalid State Parameter",
		Message: "Could not parse the state parameter from the URL.",
		Details: err.Error(),
	}
}

// Validate reports why d cannot be opened, or nil when it can.
func (d *Descriptor) Validate() *FileError {
	if d.Action == actionOpen && len(d.IDs) > 0 {
		return nil
	}
	presence := "missing"
	if len(d.IDs) > 0 {
		presence = "present"
	}
	return &FileError{
		Title:   "Invalid File Request",
		Message: "The state parameter contains invalid action or missing file IDs.",
		Details: fmt.Sprintf("Expected action %q but got %q. File IDs %s.", actionOpen, d.Action, presence),
	}
}

// FileID is the document the request opens.
func (d *Descriptor) FileID() string {
	if len(d.IDs) == 0 {
		return ""
	}
	return d.IDs[0]
}
