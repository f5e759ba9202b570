// Package persistence stores the authorization state between process runs.
//
// Gateway is constructed once and passed to whoever needs it. Load and
// Save move the serialized authstate.State through the envelope cipher and
// the data encryption key into the preference slot "appAuthState":
//
//	Save: State -> Serialize -> Protect -> prefs.Put
//	Load: prefs.Get -> Unprotect -> Deserialize -> State
//
// Neither operation reports failure to its caller. Losing the persisted
// state only means the user authorizes again, so Load falls back to an
// empty state and Save logs and carries on.
//
// Separately, a short lived Snapshot of display fields (phase, expiry,
// last message; never tokens) can be checkpointed without encryption so
// that a restarted CLI can show where the previous run left off.
package persistence
