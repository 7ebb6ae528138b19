package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingStore struct {
	events []Event
	err    error
}

func (r *recordingStore) Append(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestFanout(t *testing.T) {
	ok := &recordingStore{}
	broken := &recordingStore{err: errors.New("kafka down")}

	err := Fanout{broken, ok}.Append(context.Background(), Event{Action: "logged_out"})
	assert.ErrorContains(t, err, "kafka down")
	assert.Len(t, ok.events, 1, "a failing store does not stop the others")
	assert.Len(t, broken.events, 1)
}
