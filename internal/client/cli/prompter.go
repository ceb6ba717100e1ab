package cli

import (
	"context"
	"fmt"

	"github.com/eidolon-labs/notesync/internal/common"
)

// PromptForPassword implements keyrecovery.ChallengePrompter: it asks the
// terminal user for the password needed to attempt decrypting a recovered
// items key (spec §4.5 step 4 "challenge UI prompts for a password"). A
// read error is treated as the user declining the challenge.
func (a *App) PromptForPassword(ctx context.Context, reason string) (string, bool) {
	fmt.Println("Key recovery needs your password:", reason)
	pw, err := GetPassword("Enter password")
	if err != nil {
		return "", false
	}
	defer common.WipeByteArray(pw)
	return string(pw), true
}
