// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides transcript persistence for grealth.
//
// Only finalized records are persisted; streaming placeholders, session
// ids and credentials never reach disk.
//
// # Key Types
//
//   - Store: Save, Load, List and Delete of transcripts
//   - FileStore: One JSON file per transcript, written atomically
//   - SQLiteStore: All transcripts in a single SQLite database
//   - TranscriptMeta: Listing metadata (title, timestamps, record count)
//
// # Usage
//
//	store, err := storage.Open(cfg.Storage.Backend, dir)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	t := model.NewTranscript("English")
//	t.SetRecords(records)
//	err = store.Save(t)
//
//	metas, _ := store.List()
//	fmt.Print(storage.FormatList(metas))
package storage
