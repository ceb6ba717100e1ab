// Package item implements the typed, read-only views over decrypted
// payload content (spec §3/§5), plus the ItemMutator that turns a caller's
// edit into a new dirty Payload. Content model shapes and the
// content-type dispatch table are grounded on gosn-v2's
// parseNote/parseTag/... family and its NoteContent/TagContent structs
// (other_examples/jonhadfield-gosn-v2__items.go).
package item

// AppDataDetail mirrors gosn-v2's OrgStandardNotesSNDetail: the
// client-private metadata namespace every item's AppData carries,
// independent of its typed content fields.
type AppDataDetail struct {
	ClientUpdatedAt    string `json:"client_updated_at"`
	PrefersPlainEditor bool   `json:"prefersPlainEditor,omitempty"`
	Pinned             bool   `json:"pinned,omitempty"`
	Archived           bool   `json:"archived,omitempty"`
}

// AppData is the standard app-data wrapper keyed by app identifier, as on
// the wire (gosn-v2's AppDataContent).
type AppData struct {
	OrgStandardNotesSN AppDataDetail `json:"org.standardnotes.sn"`
}

// Reference is a uni-directional reference from one item to another,
// e.g. a tag referencing a note.
type Reference struct {
	UUID          string `json:"uuid"`
	ContentType   string `json:"content_type"`
	ReferenceType string `json:"reference_type,omitempty"`
}

// NoteContent is the decrypted content shape of a Note item.
type NoteContent struct {
	Title   string  `json:"title"`
	Text    string  `json:"text"`
	AppData AppData `json:"appData"`
}

// TagContent is the decrypted content shape of a Tag item.
type TagContent struct {
	Title      string      `json:"title"`
	References []Reference `json:"references"`
	AppData    AppData     `json:"appData"`
}

// ItemsKeyContent is the decrypted content shape of a SN|ItemsKey item —
// the key material itself, base64-encoded, plus the version it was
// created under.
type ItemsKeyContent struct {
	ItemsKey  string `json:"itemsKey"`
	Version   string `json:"version"`
	IsDefault bool   `json:"isDefault"`
}

// PrivilegesContent gates sensitive actions behind a re-auth challenge;
// content is a map from privilege credential type to the set of protected
// actions, per gosn-v2's privileges item.
type PrivilegesContent struct {
	Desktop map[string][]string `json:"desktop,omitempty"`
}

// ComponentContent is the decrypted content shape of an SN|Component item
// (an installed editor/plugin reference, spec's "component/plugin host"
// external collaborator — this library only models its item metadata, it
// never loads or executes component code).
type ComponentContent struct {
	Name          string                 `json:"name"`
	Active        bool                   `json:"active"`
	PackageInfo   map[string]interface{} `json:"package_info,omitempty"`
	HostedURL     string                 `json:"hosted_url,omitempty"`
	ComponentData map[string]interface{} `json:"componentData,omitempty"`
}

// UserPreferencesContent holds arbitrary named client preferences (spec §8
// scenario 5, setPreference/getPreference), modeled as an open map since
// the set of known preference keys grows without a protocol version bump.
type UserPreferencesContent struct {
	Values map[string]interface{} `json:"values"`
}
