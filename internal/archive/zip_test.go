// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("dives.zip"))
	assert.True(t, IsArchive("DIVES.ZIP"))
	assert.False(t, IsArchive("dives.csv"))
	assert.False(t, IsArchive("dives"))
}

func TestBundleExpandRoundTrip(t *testing.T) {
	in := []Member{
		{Name: "dive_1.zxu", Data: []byte("FSH|^~<>{}|ABC123^^|ZXU|20260301120000|\n")},
		{Name: "dive_2.zxu", Data: []byte("FSH|^~<>{}|ABC123^^|ZXU|20260301120500|\n")},
	}

	data, err := Bundle(in)
	require.NoError(t, err)

	out, err := Expand(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestExpandSkipsDirectoriesAndHiddenEntries(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	_, err := w.Create("exports/")
	require.NoError(t, err)

	f, err := w.Create("exports/log.csv")
	require.NoError(t, err)
	_, err = f.Write([]byte("Dive #,Date\n"))
	require.NoError(t, err)

	f, err = w.Create(".DS_Store")
	require.NoError(t, err)
	_, err = f.Write([]byte{0})
	require.NoError(t, err)

	require.NoError(t, w.Close())

	members, err := Expand(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, members, 1)

	// Directory components are stripped from member names.
	assert.Equal(t, "log.csv", members[0].Name)
}

func TestExpandRejectsGarbage(t *testing.T) {
	_, err := Expand([]byte("not a zip archive"))
	require.Error(t, err)
}
