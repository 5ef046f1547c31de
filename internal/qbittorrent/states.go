// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"slices"

	qbt "github.com/autobrr/go-qbittorrent"
)

// completeStates lists states where every wanted piece is on disk.
var completeStates = []qbt.TorrentState{
	qbt.TorrentStateUploading,
	qbt.TorrentStateStalledUp,
	qbt.TorrentStatePausedUp,
	qbt.TorrentStateStoppedUp,
	qbt.TorrentStateQueuedUp,
	qbt.TorrentStateForcedUp,
	qbt.TorrentStateCheckingUp,
}

// downloadingStates lists states where data is still missing.
var downloadingStates = []qbt.TorrentState{
	qbt.TorrentStateDownloading,
	qbt.TorrentStateStalledDl,
	qbt.TorrentStatePausedDl,
	qbt.TorrentStateStoppedDl,
	qbt.TorrentStateQueuedDl,
	qbt.TorrentStateForcedDl,
	qbt.TorrentStateCheckingDl,
	qbt.TorrentStateMetaDl,
	qbt.TorrentStateAllocating,
}

// brokenStates lists states where the payload cannot be trusted.
var brokenStates = []qbt.TorrentState{
	qbt.TorrentStateError,
	qbt.TorrentStateMissingFiles,
	qbt.TorrentStateMoving,
	qbt.TorrentStateCheckingResumeData,
}

func stateMatches(state qbt.TorrentState, states []qbt.TorrentState) bool {
	return slices.Contains(states, state)
}

// IsComplete reports whether the torrent payload can be imported.
func IsComplete(state qbt.TorrentState, progress float64) bool {
	if stateMatches(state, brokenStates) || stateMatches(state, downloadingStates) {
		return false
	}
	if stateMatches(state, completeStates) {
		return true
	}
	return progress >= 1
}
