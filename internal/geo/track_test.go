package geo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrack_Valid(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	track, err := ParseTrack([]byte(`[[47.1,-117.2],[47.2,-117.3,5]]`), start, time.Second)
	require.NoError(t, err)
	require.Len(t, track, 2)

	assert.Equal(t, 47.1, track[0].Latitude)
	assert.Equal(t, -117.2, track[0].Longitude)
	assert.Zero(t, track[0].Accuracy)
	assert.Equal(t, start, track[0].Time)

	assert.Equal(t, 5.0, track[1].Accuracy)
	assert.Equal(t, start.Add(time.Second), track[1].Time)
}

func TestParseTrack_InvalidJSON(t *testing.T) {
	_, err := ParseTrack([]byte(`not json`), time.Now(), time.Second)
	assert.Error(t, err)
}

func TestParseTrack_Empty(t *testing.T) {
	_, err := ParseTrack([]byte(`[]`), time.Now(), time.Second)
	assert.Error(t, err)
}

func TestParseTrack_InsufficientCoordinates(t *testing.T) {
	_, err := ParseTrack([]byte(`[[1]]`), time.Now(), time.Second)
	assert.Error(t, err)
}

func TestParseTrack_OutOfRange(t *testing.T) {
	_, err := ParseTrack([]byte(`[[100,0]]`), time.Now(), time.Second)
	assert.True(t, errors.Is(err, ErrInvalidCoordinates))
}

func TestTrackLineString(t *testing.T) {
	track, err := ParseTrack([]byte(`[[1,2],[3,4],[5,6]]`), time.Now(), time.Second)
	require.NoError(t, err)

	ls := TrackLineString(track)
	require.False(t, ls.IsEmpty())
	seq := ls.Coordinates()
	require.Equal(t, 3, seq.Length())
	assert.Equal(t, 2.0, seq.GetXY(0).X, "longitude is X")
	assert.Equal(t, 1.0, seq.GetXY(0).Y, "latitude is Y")
}

func TestTrackLineString_SinglePointIsEmpty(t *testing.T) {
	track, err := ParseTrack([]byte(`[[1,2]]`), time.Now(), time.Second)
	require.NoError(t, err)

	assert.True(t, TrackLineString(track).IsEmpty())
}
