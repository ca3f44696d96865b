// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package playback turns finalized replies into speech.
//
// Audio for a record is synthesized at most once and cached; concurrent
// requests for the same record share one fetch. Playback is exclusive:
// starting one record pauses whichever record was playing. Records that
// are still pending or streaming are refused.
//
// # Key Types
//
//   - Coordinator: Fetch-once cache plus exclusive playback
//   - Synthesizer: Text-to-speech collaborator
//   - Player: Audio output collaborator
//   - CommandPlayer: Player that writes audio files and runs an external command
//
// # Usage
//
//	coord := playback.NewCoordinator(records, synth, player, playback.Config{})
//	playing, err := coord.Toggle(ctx, recordID, "English")
package playback
