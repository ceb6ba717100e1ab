package payload

// ContentType discriminates the shape of a Payload's Content. String-tagged
// by the wire protocol, so values are exported constants rather than an
// enum — new types can arrive from the server that this build doesn't know
// about, and unknown types must round-trip rather than be rejected.
type ContentType string

const (
	ContentTypeNote            ContentType = "Note"
	ContentTypeTag             ContentType = "Tag"
	ContentTypeItemsKey        ContentType = "SN|ItemsKey"
	ContentTypeComponent       ContentType = "SN|Component"
	ContentTypeTheme           ContentType = "SN|Theme"
	ContentTypePrivileges      ContentType = "SN|Privileges"
	ContentTypeUserPreferences ContentType = "SN|UserPreferences"
	ContentTypeExtension       ContentType = "Extension"
	ContentTypeSmartTag        ContentType = "SN|SmartTag"
	ContentTypeFile            ContentType = "SN|File"
)

// IsEncrypted reports whether items of this content type go through the
// normal per-item-key pipeline. It returns false for items keys: they are
// still encrypted, but directly under the root key using a distinct
// framing (see crypto package), never under another items key.
func IsEncrypted(ct ContentType) bool {
	return ct != ContentTypeItemsKey
}
