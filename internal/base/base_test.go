// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package base

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("jobs"))
	require.Error(t, ValidateName(""))
	require.Error(t, ValidateName(" \t"))
}

func TestClientID(t *testing.T) {
	got := ClientID("box", 42, time.Unix(1444222459, 0))
	require.Equal(t, "box[42][1444222459]", got)
}

func TestQueueKeys(t *testing.T) {
	k := NewQueueKeys("jobs", "box[42][1]", false)
	require.Equal(t, QueueKeys{
		Queue:      "jobs",
		Processing: "jobs-processing-box[42][1]",
		Timeouts:   "jobs-timeouts",
	}, k)

	u := NewQueueKeys("jobs", "box[42][1]", true)
	require.Equal(t, "jobs-unique", u.Unique)

	other := u.WithProcessing("jobs-processing-other")
	require.Equal(t, "jobs-processing-other", other.Processing)
	require.Equal(t, "jobs-processing-box[42][1]", u.Processing)
}

func TestOwnerFromProcessingKey(t *testing.T) {
	owner, ok := OwnerFromProcessingKey("jobs", "jobs-processing-box[42][1]")
	require.True(t, ok)
	require.Equal(t, "box[42][1]", owner)

	_, ok = OwnerFromProcessingKey("jobs", "mail-processing-box[42][1]")
	require.False(t, ok)
}

func TestChunks(t *testing.T) {
	tests := []struct {
		items []int
		size  int
		want  [][]int
	}{
		{nil, 3, nil},
		{[]int{1, 2, 3}, 3, [][]int{{1, 2, 3}}},
		{[]int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2}, {3, 4}, {5}}},
		{[]int{1, 2}, 0, [][]int{{1, 2}}},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Chunks(tc.items, tc.size))
	}
}

func TestReversed(t *testing.T) {
	items := []string{"a", "b", "c"}
	require.Equal(t, []string{"c", "b", "a"}, Reversed(items))
	require.Equal(t, []string{"a", "b", "c"}, items)
	require.Empty(t, Reversed([]string{}))
}
