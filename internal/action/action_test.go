package action

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr error
	}{
		{"navigate ok", Navigate("https://example.com"), nil},
		{"navigate without url", Action{Kind: KindNavigate}, ErrMissingParam},
		{"click ok", Click("#login"), nil},
		{"click without selector", Action{Kind: KindClick}, ErrMissingParam},
		{"extract without selector", Action{Kind: KindExtract}, ErrMissingParam},
		{"type without selector", Type("hello", ""), nil},
		{"type without text", Action{Kind: KindType, Selector: "input"}, ErrMissingParam},
		{"wait zero", Wait(0), nil},
		{"wait negative", Wait(-2), ErrMissingParam},
		{"wait at the duration limit", Wait(int(MaxWaitSeconds)), nil},
		{"wait past the duration limit", Wait(int(MaxWaitSeconds) + 1), ErrOutOfRange},
		{"scroll is not a kind", Action{Kind: "scroll", Selector: "body"}, ErrUnknownKind},
		{"empty kind", Action{}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestAction_WaitDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, Wait(3).WaitDuration())
	assert.Positive(t, Wait(int(MaxWaitSeconds)).WaitDuration())
}

func TestAction_Cost(t *testing.T) {
	assert.Equal(t, 3, Navigate("https://a.com").Cost())
	assert.Equal(t, 1, Click("a").Cost())
	assert.Equal(t, 2, Type("x", "").Cost())
	assert.Equal(t, 1, Extract("h1").Cost())
	assert.Equal(t, 7, Wait(7).Cost())
}

func TestAction_JSONShape(t *testing.T) {
	data, err := json.Marshal(Navigate("https://google.com"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"navigate","url":"https://google.com"}`, string(data))

	data, err = json.Marshal(Wait(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"wait","duration":0}`, string(data))

	data, err = json.Marshal(Type("hi", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"type","text":"hi"}`, string(data))
}

func TestAction_UnmarshalWaitWithoutDuration(t *testing.T) {
	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"type":"wait"}`), &a))
	assert.Equal(t, KindWait, a.Kind)
	assert.Error(t, a.Validate())
}

func TestAction_UnmarshalUnknownKind(t *testing.T) {
	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"type":"hover","selector":"a"}`), &a))
	assert.False(t, a.Kind.Known())
	assert.True(t, errors.Is(a.Validate(), ErrUnknownKind))

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"hover","selector":"a"}`, string(data))
}
