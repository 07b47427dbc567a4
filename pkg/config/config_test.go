package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/kylelemons/godebug/pretty"
)

func TestNewFromReader(t *testing.T) {
	c, err := NewFromReader(strings.NewReader(`
kind: vendor-onboarding
backend:
  type: memory
  fixture: ~/fixtures.yaml
pageSize: 25
debounce: 300ms
logging:
  level: debug
kinds:
- name: vendor-onboarding
  stages:
  - name: applied
    next: [verified, declined]
  - name: verified
    label: Verified
    ordering: append
  - name: declined
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.PageSize != 25 || c.Debounce != 300*time.Millisecond || c.Backend.Fixture != "~/fixtures.yaml" {
		t.Errorf("unexpected config %+v", c)
	}
	// unset values keep their defaults
	if c.Logging.Format != Default.Logging.Format || c.Backend.Timeout != Default.Backend.Timeout {
		t.Errorf("defaults lost: %+v", c)
	}

	reg, err := c.Registry("vendor-onboarding")
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(reg.NextStages("applied"), []v1.Stage{"verified", "declined"}); diff != "" {
		t.Errorf("next stages (-got +want):\n%s", diff)
	}
	if reg.Ordering("verified") != stage.OrderAppend {
		t.Errorf("ordering not carried over")
	}

	// builtin kinds stay reachable
	if _, err := c.Registry(stage.KindInternshipApplications); err != nil {
		t.Errorf("builtin kind missing: %v", err)
	}
	if names := c.KindNames(); len(names) != 4 || names[0] != "vendor-onboarding" {
		t.Errorf("unexpected kinds %v", names)
	}
}

func TestInvalidConfigs(t *testing.T) {
	testcases := map[string]string{
		"rest without url":  "backend: {type: rest, url: ''}",
		"memory no fixture": "backend: {type: memory}",
		"unknown backend":   "backend: {type: postgres}",
		"bad page size":     "pageSize: 0",
		"bad level":         "logging: {level: chatty}",
		"undeclared target": "kinds: [{name: k, stages: [{name: a, next: [b]}]}]",
		"duplicate stage":   "kinds: [{name: k, stages: [{name: a}, {name: a}]}]",
		"bad ordering":      "kinds: [{name: k, stages: [{name: a, ordering: random}]}]",
		"no stages":         "kinds: [{name: k}]",
	}
	for name, doc := range testcases {
		if _, err := NewFromReader(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(c, &Default); diff != "" {
		t.Errorf("(-got +want):\n%s", diff)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults must be valid: %v", err)
	}
}
