package item

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// Mutator accepts a typed item, lets the caller mutate a working copy of
// its content, and produces a new Payload with Dirty=true and a fresh
// DirtiedDate (spec §3/§4.2 "changeItem"). Mutator itself holds no state
// across calls — each Mutate call is a single, self-contained transition.
type Mutator struct {
	now func() time.Time
}

func NewMutator(now func() time.Time) *Mutator {
	if now == nil {
		now = time.Now
	}
	return &Mutator{now: now}
}

// NoteMutator exposes the editable fields of a Note.
type NoteMutator struct {
	Title string
	Text  string
}

// MutateNote applies fn to a working copy of n's content and returns the
// resulting dirty Payload.
func (m *Mutator) MutateNote(n Note, fn func(*NoteMutator)) (payload.Payload, error) {
	working := NoteMutator{Title: n.Content.Title, Text: n.Content.Text}
	fn(&working)
	content := n.Content
	content.Title = working.Title
	content.Text = working.Text
	return m.apply(n.Base, content)
}

// TagMutator exposes the editable fields of a Tag.
type TagMutator struct {
	Title      string
	References []Reference
}

func (m *Mutator) MutateTag(t Tag, fn func(*TagMutator)) (payload.Payload, error) {
	working := TagMutator{Title: t.Content.Title, References: append([]Reference(nil), t.Content.References...)}
	fn(&working)
	content := t.Content
	content.Title = working.Title
	content.References = working.References
	return m.apply(t.Base, content)
}

// UserPreferencesMutator exposes the editable values map of
// UserPreferences (spec §8 scenario 5: setPreference/getPreference).
type UserPreferencesMutator struct {
	Values map[string]interface{}
}

func (m *Mutator) MutateUserPreferences(u UserPreferences, fn func(*UserPreferencesMutator)) (payload.Payload, error) {
	values := make(map[string]interface{}, len(u.Content.Values))
	for k, v := range u.Content.Values {
		values[k] = v
	}
	working := UserPreferencesMutator{Values: values}
	fn(&working)
	content := u.Content
	content.Values = working.Values
	return m.apply(u.Base, content)
}

func (m *Mutator) apply(base Base, content interface{}) (payload.Payload, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return payload.Payload{}, fmt.Errorf("item: marshal mutated content: %w", err)
	}
	return base.p.WithContent(string(raw)).MarkDirty(m.now()), nil
}

// NewNote builds the dirty Payload for a brand-new Note with the given
// title/text, ready to hand to a PayloadManager.EmitPayloads call. Unlike
// MutateNote there is no existing Base to project from, so the Payload is
// assembled directly via payload.NewBuilder.
func (m *Mutator) NewNote(title, text string) (payload.Payload, error) {
	raw, err := json.Marshal(NoteContent{Title: title, Text: text})
	if err != nil {
		return payload.Payload{}, fmt.Errorf("item: marshal new note content: %w", err)
	}
	now := m.now()
	p := payload.NewBuilder().
		NewUUID().
		ContentType(payload.ContentTypeNote).
		Content(string(raw)).
		CreatedAt(now).
		UpdatedAt(now).
		Build()
	return p.MarkDirty(now), nil
}

// SetPreference is a convenience built on MutateUserPreferences for the
// common single-key-set case spec §8 scenario 5 exercises directly.
func (m *Mutator) SetPreference(u UserPreferences, key string, value interface{}) (payload.Payload, error) {
	return m.MutateUserPreferences(u, func(mu *UserPreferencesMutator) {
		if mu.Values == nil {
			mu.Values = make(map[string]interface{})
		}
		mu.Values[key] = value
	})
}

// GetPreference returns the value for key, or (nil, false) if unset —
// callers apply their own default, matching spec §8 scenario 5's "a fresh
// install without register returns the default value" (the default lives
// with the caller, not in this layer).
func GetPreference(u UserPreferences, key string) (interface{}, bool) {
	v, ok := u.Content.Values[key]
	return v, ok
}
