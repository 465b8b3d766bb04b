package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newTestRoot() (*cobra.Command, *Flags, *bytes.Buffer) {
	flags := &Flags{}
	buf := &bytes.Buffer{}
	c := command{out: buf, errOut: io.Discard}
	root := createRootCommand(c, flags)
	root.SetOut(buf)
	root.SetErr(io.Discard)
	return root, flags, buf
}

func TestAttachFlagOptionalValue(t *testing.T) {
	cases := []struct {
		name  string
		args  []string
		set   bool
		value string
	}{
		{"absent", nil, false, ""},
		{"bare", []string{"--attach"}, true, attachRandom},
		{"shorthand", []string{"-a"}, true, attachRandom},
		{"explicit id", []string{"--attach=QmYwAPJz"}, true, "QmYwAPJz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root, flags, _ := newTestRoot()
			if err := root.ParseFlags(tc.args); err != nil {
				t.Fatalf("parse %v: %v", tc.args, err)
			}
			if got := root.Flags().Changed("attach"); got != tc.set {
				t.Fatalf("changed = %v, want %v", got, tc.set)
			}
			if flags.Attach != tc.value {
				t.Fatalf("value = %q, want %q", flags.Attach, tc.value)
			}
		})
	}
}

func TestGenerateServiceFlagOptionalValue(t *testing.T) {
	root, flags, _ := newTestRoot()
	if err := root.ParseFlags([]string{"--generate-service"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !root.Flags().Changed("generate-service") {
		t.Fatal("flag should register as changed")
	}
	if got := strings.Fields(flags.GenerateService); len(got) != 0 {
		t.Fatalf("bare flag should carry no extra args, got %v", got)
	}

	root, flags, _ = newTestRoot()
	if err := root.ParseFlags([]string{"--generate-service=--attach --address=http://localhost:5001"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := strings.Fields(flags.GenerateService)
	want := []string{"--attach", "--address=http://localhost:5001"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("extra args = %v, want %v", got, want)
	}
}

func TestVersionFlag(t *testing.T) {
	root, _, buf := newTestRoot()
	root.SetArgs([]string{"--version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), version) {
		t.Fatalf("version output %q missing %q", buf.String(), version)
	}
}

func TestHelpListsFlags(t *testing.T) {
	root, _, buf := newTestRoot()
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, flag := range []string{"--attach", "--address", "--clean", "--home", "--generate-service", "--config"} {
		if !strings.Contains(buf.String(), flag) {
			t.Fatalf("help output missing %s", flag)
		}
	}
}
