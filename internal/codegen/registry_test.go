package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSecondary(t *testing.T, filter, name, modifier string) Definition {
	t.Helper()
	d, err := NewSecondary(filter, name, modifier)
	require.NoError(t, err)
	return d
}

func TestNewSecondaryDefaults(t *testing.T) {
	d := mustSecondary(t, "/mailFolders/{}/childFolders", "", "")
	assert.Equal(t, "childFolders", d.Key)
	assert.Equal(t, "childFolders", d.Segment)
	assert.Equal(t, "ChildFolder", d.Modifier)
	assert.Equal(t, Secondary, d.Kind)

	_, err := NewSecondary("/users/{}", "", "")
	assert.Error(t, err)
	_, err = NewSecondary("", "x", "")
	assert.Error(t, err)
}

func TestRegistryMatch(t *testing.T) {
	r := NewRegistry()
	r.Add(NewMain("users", ""))
	r.Add(mustSecondary(t, "/messages", "", "Message"))
	r.Add(mustSecondary(t, "/mailFolders/{}/messages", "folderMessages", "FolderMessage"))

	tests := []struct {
		name    string
		prefix  string
		wantKey string
	}{
		{"main at root", "/users", "users"},
		{"secondary below an id", "/users/{{id}}/messages", "messages"},
		{"secondary directly below", "/me/messages", "messages"},
		{"longest filter wins", "/users/{{id}}/mailFolders/{{id1}}/messages", "folderMessages"},
		{"main only at root", "/groups/{{id}}/users", ""},
		{"secondary needs a parent", "/messages", ""},
		{"different segment", "/users/{{id}}/events", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := r.Match(canonicalSegments(tt.prefix))
			if tt.wantKey == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantKey, d.Key)
		})
	}
}

func TestPathContainsMulti(t *testing.T) {
	f := PathContainsMulti{"/pages/{}", "/$metadata"}
	assert.True(t, f.Match("/onenote/pages/{{RID}}"))
	assert.True(t, f.Match("/onenote/pages/{{id}}/content"))
	assert.True(t, f.Match("/$metadata"))
	assert.False(t, f.Match("/onenote/pages"))
}

func TestRegistryFilters(t *testing.T) {
	r := NewRegistry()
	r.AddIgnore(PathContainsMulti{"/$batch"})
	r.AddFilter("onenote", PathContainsMulti{"/sections/{}"})

	assert.True(t, r.Ignored("/$batch"))
	assert.False(t, r.Ignored("/users"))
	assert.True(t, r.Filtered("onenote", "/onenote/sections/{{id}}"))
	assert.False(t, r.Filtered("onenote", "/onenote/sections"))
	assert.False(t, r.Filtered("users", "/onenote/sections/{{id}}"))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
package: mail
inferSecondaries: false
ignore: [/$batch]
resources:
  - kind: main
    segment: users
  - kind: secondary
    startFilter: /users/{}/messages
    modifier: Mail
    ignore: [/attachments]
`))
	require.NoError(t, err)
	assert.Equal(t, "mail", cfg.Package)
	assert.Equal(t, DefaultRuntimeImport, cfg.RuntimeImport)
	assert.False(t, cfg.InferSecondaries)
	require.Len(t, cfg.Resources, 2)

	r, err := cfg.Registry()
	require.NoError(t, err)
	assert.True(t, r.HasKey("users"))
	assert.True(t, r.HasKey("messages"))
	assert.True(t, r.Ignored("/$batch"))
	assert.True(t, r.Filtered("messages", "/messages/{{RID}}/attachments"))

	d, ok := r.Match(canonicalSegments("/users/{{id}}/messages"))
	require.True(t, ok)
	assert.Equal(t, "Mail", d.Modifier)
}

func TestParseConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"missing package":          "resources: []",
		"bad package":              "package: my-pkg",
		"unknown kind":             "package: p\nresources: [{kind: tertiary}]",
		"main without segment":     "package: p\nresources: [{kind: main}]",
		"secondary without filter": "package: p\nresources: [{kind: secondary}]",
		"not yaml":                 "package: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	assert.Equal(t, "graphapi", cfg.Package)
	assert.True(t, cfg.InferSecondaries)

	r, err := cfg.Registry()
	require.NoError(t, err)
	assert.True(t, r.HasKey("childFolders"))
	assert.True(t, r.Ignored("/$metadata"))

	d, ok := r.Match(canonicalSegments("/drives/{{id}}/items"))
	require.True(t, ok)
	assert.Equal(t, "DriveItem", d.Modifier)
}
