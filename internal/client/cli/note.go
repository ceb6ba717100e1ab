package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/item"
	"github.com/eidolon-labs/notesync/internal/client/manager"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/client/syncengine"
)

// addNote collects a title and body and persists a new Note item (spec
// §3/§4.2), encrypted on the next sync round rather than immediately — the
// payload sits dirty in the Payload Manager's master collection until
// sync() uploads it, matching spec §4.3's "dirty items wait for the next
// sync round" model.
func (a *App) addNote(ctx context.Context) {
	if !a.isSignedIn() {
		fmt.Println("Sign in first")
		return
	}

	title, err := GetSimpleText(a.reader, "Enter note title")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	text, err := GetMultiline(a.reader, "Enter note text")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	note, err := a.items.CreateNote(title, text)
	if err != nil {
		fmt.Println("create note failed:", err)
		return
	}

	if err := a.storage.SavePayload(ctx, note.Payload()); err != nil {
		fmt.Println("local save failed:", err)
		return
	}

	fmt.Println("Created note", note.UUID())
}

// list prints every locally known, decrypted Note.
func (a *App) list(ctx context.Context) {
	for _, p := range a.payloads.All() {
		if p.ContentType != payload.ContentTypeNote || p.Deleted {
			continue
		}
		it, ok := a.items.Find(p.UUID)
		if !ok {
			continue
		}
		note := it.(item.Note)
		fmt.Printf("%s  %s\n", note.UUID(), note.Content.Title)
	}
}

// show prints a single note's full text.
func (a *App) show(uuid string) {
	it, ok := a.items.Find(uuid)
	if !ok {
		fmt.Println("not found:", uuid)
		return
	}
	note, ok := it.(item.Note)
	if !ok {
		fmt.Println("not a note:", uuid)
		return
	}
	fmt.Println(note.Content.Title)
	fmt.Println("---")
	fmt.Println(note.Content.Text)
}

// deleteNote tombstones a note and persists the deletion locally; the
// tombstone syncs out on the next round (spec §3's MarkDeleted).
func (a *App) deleteNote(ctx context.Context, uuid string) {
	it, ok := a.items.Find(uuid)
	if !ok {
		fmt.Println("not found:", uuid)
		return
	}
	p := it.Payload().MarkDeleted(time.Now())
	a.payloads.EmitPayloads([]payload.Payload{p}, manager.SourceLocalChanged)
	if err := a.storage.SavePayload(ctx, p); err != nil {
		fmt.Println("local save failed:", err)
		return
	}
	fmt.Println("Deleted", uuid)
}

// sync runs a manual sync round on demand (spec §4.3).
func (a *App) sync(ctx context.Context) {
	if !a.isSignedIn() {
		fmt.Println("Sign in first")
		return
	}
	if err := a.engine.Sync(ctx, syncengine.Options{Mode: syncengine.ModeDefault}); err != nil {
		fmt.Println("sync failed:", err)
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
	fmt.Println("Sync complete")
}
