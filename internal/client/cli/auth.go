package cli

import (
	"context"
	"fmt"

	"github.com/eidolon-labs/notesync/internal/client/migration"
	"github.com/eidolon-labs/notesync/internal/client/syncengine"
	"github.com/eidolon-labs/notesync/internal/common"
)

// register walks the user through spec §8 scenario 1's registration flow:
// email + password in, a freshly derived root key and session on success.
func (a *App) register(ctx context.Context) {
	email, err := GetSimpleText(a.reader, "Enter email")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	password, err := GetPassword("Enter password")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer common.WipeByteArray(password)

	if err := a.session.Register(ctx, email, string(password)); err != nil {
		fmt.Println("registration failed:", err)
		return
	}

	a.userName = email
	a.setMode(ModeOnline)
	a.signalSignedIn(ctx)
	fmt.Println("Registered and signed in as", email)
}

// login walks the user through spec §8 scenario 1's sign-in flow.
func (a *App) login(ctx context.Context) {
	email, err := GetSimpleText(a.reader, "Enter email")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	password, err := GetPassword("Enter password")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer common.WipeByteArray(password)

	if err := a.session.SignIn(ctx, email, string(password)); err != nil {
		fmt.Println("sign-in failed:", err)
		a.setMode(ModeOffline)
		return
	}

	a.userName = email
	a.setMode(ModeOnline)
	a.signalSignedIn(ctx)
	fmt.Println("Signed in as", email)
}

// logout clears the local session and root key (spec §8 scenario 1's
// explicit sign-out; this protocol has no server-side session to revoke).
func (a *App) logout(ctx context.Context) {
	if err := a.session.SignOut(ctx); err != nil {
		fmt.Println("sign-out failed:", err)
		return
	}
	a.userName = ""
	a.setMode(ModeOffline)
	fmt.Println("Signed out")
}

// signalSignedIn forwards the final spec §4.6 launch stage once a root key
// has been established, and runs the initial sync (spec §8 scenario 1's
// "client completes an initial sync" expectation).
func (a *App) signalSignedIn(ctx context.Context) {
	if err := a.runner.Forward(ctx, migration.StageSignedIn); err != nil {
		fmt.Println("migration stage SignedIn failed:", err)
	}

	if err := a.engine.Sync(ctx, syncengine.Options{Mode: syncengine.ModeInitial, CheckIntegrity: true}); err != nil {
		fmt.Println("initial sync failed:", err)
	}
}
