package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperatorConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     OperatorConfig
		wantErr bool
	}{
		{"valid", OperatorConfig{AllowedValidators: []string{"1", "2"}, OwnValidatorID: "1"}, false},
		{"no own validator", OperatorConfig{AllowedValidators: []string{"1"}}, false},
		{"empty allowed set", OperatorConfig{OwnValidatorID: "1"}, true},
		{"own validator not allowed", OperatorConfig{AllowedValidators: []string{"2"}, OwnValidatorID: "1"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOperatorConfigDefaults(t *testing.T) {
	cfg := OperatorConfig{}
	assert.Equal(t, defaultAPIPort, cfg.apiPort())
	assert.Equal(t, time.Duration(defaultRefreshMinutes)*time.Minute, cfg.refreshInterval())

	cfg = OperatorConfig{APIPort: 8080, RefreshMinutes: 5}
	assert.Equal(t, 8080, cfg.apiPort())
	assert.Equal(t, 5*time.Minute, cfg.refreshInterval())
}
