package codegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOp(t *testing.T, method, opID, raw string) Operation {
	t.Helper()
	path, names, err := NormalizePath(raw)
	require.NoError(t, err)
	mapping := Mapping(opID)
	return Operation{
		OperationID: opID,
		Method:      method,
		RawPath:     raw,
		Path:        path,
		ParamNames:  names,
		Name:        MethodName(opID),
		Mapping:     mapping,
		Links:       Links(mapping),
	}
}

func fixtureForest(t *testing.T) *Forest {
	t.Helper()
	doc, err := LoadDocument(context.Background(), "testdata/graph-mini.yaml")
	require.NoError(t, err)
	ops, warnings := NewParser(nil).Parse(doc)
	require.Empty(t, warnings)

	cfg, err := DefaultConfig()
	require.NoError(t, err)
	r, err := cfg.Registry()
	require.NoError(t, err)
	return NewGrouper(r, cfg.InferSecondaries, nil).Group(ops)
}

func opNames(ops []NodeOperation) []string {
	var out []string
	for _, op := range ops {
		out = append(out, op.GoName)
	}
	return out
}

func linkKeys(links []NodeLink) []string {
	var out []string
	for _, l := range links {
		out = append(out, l.Child.Key)
	}
	return out
}

func TestGroupFixture(t *testing.T) {
	f := fixtureForest(t)

	var keys []string
	for _, n := range f.Nodes {
		keys = append(keys, n.Key)
	}
	assert.Equal(t, []string{"applications", "me", "messages", "todo", "users"}, keys)
	assert.Equal(t, 1, f.Filtered)
	assert.Empty(t, f.Warnings)

	var roots []string
	for _, n := range f.Roots() {
		roots = append(roots, n.Key)
	}
	assert.Equal(t, []string{"applications", "me", "users"}, roots)

	users := f.Node("users")
	require.NotNil(t, users)
	assert.Equal(t, "UsersClient", users.CollectionType)
	assert.Equal(t, "UserIDClient", users.IDType)
	assert.Equal(t, []string{"ListUser", "CreateUser"}, opNames(users.Collection))
	assert.Equal(t, []string{"DeleteUser", "GetUser", "UpdateUser"}, opNames(users.ByID))
	assert.Equal(t, []string{"messages", "todo"}, linkKeys(users.ByIDLinks))
	assert.Empty(t, users.CollectionLinks)
	assert.Equal(t, "/users/{{RID}}", users.ByID[0].RelPath)

	msgLink := users.ByIDLinks[0]
	assert.Equal(t, "Messages", msgLink.CollectionName)
	assert.Equal(t, "Message", msgLink.ByIDName)
	todoLink := users.ByIDLinks[1]
	assert.Equal(t, "Todo", todoLink.CollectionName)
	assert.Empty(t, todoLink.ByIDName, "todo has no id-bound client")

	me := f.Node("me")
	require.NotNil(t, me)
	assert.False(t, me.HasID())
	assert.Empty(t, me.Collection)
	assert.Equal(t, []string{"messages"}, linkKeys(me.CollectionLinks))

	messages := f.Node("messages")
	require.NotNil(t, messages)
	assert.False(t, messages.Main)
	assert.Equal(t, []string{"ListMessages", "CreateMessages"}, opNames(messages.Collection), "shared paths are emitted once")
	assert.Equal(t, []string{"DeleteMessages", "GetMessages", "GetMessagesContent", "Move"}, opNames(messages.ByID))
	for _, op := range messages.ByID {
		assert.Empty(t, op.Params, op.RelPath)
	}
	assert.Equal(t, "/messages/{{RID}}/move", messages.ByID[3].RelPath)

	todo := f.Node("todo")
	require.NotNil(t, todo)
	require.Len(t, todo.Collection, 1)
	assert.Equal(t, "/todo/lists/{{id}}/tasks", todo.Collection[0].RelPath)
	assert.Equal(t, []string{"todo_task_list_id"}, todo.Collection[0].Params)
	assert.Equal(t, "ListTasks", todo.Collection[0].GoName)

	// 15 parsed, /$metadata ignored, the me and users message lists merged.
	assert.Equal(t, 13, f.OperationCount())
}

func TestGroupDeepestAdjacentBoundary(t *testing.T) {
	r := NewRegistry()
	r.Add(NewMain("users", ""))
	r.Add(mustSecondary(t, "/events", "", "Event"))

	f := NewGrouper(r, false, nil).Group([]Operation{
		testOp(t, "GET", "users.calendar.events.GetEvents", "/users/{user-id}/calendar/events/{event-id}"),
	})
	require.Len(t, f.Nodes, 1)
	users := f.Node("users")
	require.Len(t, users.ByID, 1)
	op := users.ByID[0]
	assert.Equal(t, "/users/{{RID}}/calendar/events/{{id}}", op.RelPath)
	assert.Equal(t, []string{"event_id"}, op.Params)
	assert.Nil(t, f.Node("events"), "events is not adjacent to users")
}

func TestGroupImplicitMainAndInference(t *testing.T) {
	ops := func() []Operation {
		return []Operation{
			testOp(t, "GET", "groups.threads.ListThreads", "/groups/{group-id}/threads"),
			testOp(t, "GET", "groups.threads.posts.ListPosts", "/groups/{group-id}/threads/{conversationThread-id}/posts"),
		}
	}

	r := NewRegistry()
	f := NewGrouper(r, true, nil).Group(ops())

	groups := f.Node("groups")
	require.NotNil(t, groups)
	assert.True(t, groups.Main)
	assert.Equal(t, []string{"threads"}, linkKeys(groups.ByIDLinks))

	threads := f.Node("threads")
	require.NotNil(t, threads, "threads inferred from groups -> threads")
	assert.Equal(t, []string{"ListThreads"}, opNames(threads.Collection))
	assert.Equal(t, []string{"posts"}, linkKeys(threads.ByIDLinks))

	posts := f.Node("posts")
	require.NotNil(t, posts)
	require.Len(t, posts.Collection, 1)
	assert.Equal(t, "/posts", posts.Collection[0].RelPath)

	require.Len(t, r.Definitions(), 3)
	for _, d := range r.Definitions() {
		assert.True(t, d.Implicit, d.Key)
	}

	// Without inference the main owns both paths.
	f = NewGrouper(NewRegistry(), false, nil).Group(ops())
	require.Len(t, f.Nodes, 1)
	assert.Equal(t, []string{"/groups/{{RID}}/threads", "/groups/{{RID}}/threads/{{id}}/posts"},
		[]string{f.Nodes[0].ByID[0].RelPath, f.Nodes[0].ByID[1].RelPath})
}

func TestGroupFilters(t *testing.T) {
	r := NewRegistry()
	r.Add(NewMain("users", ""))
	r.Add(mustSecondary(t, "/onenote", "", ""))
	r.AddFilter("onenote", PathContainsMulti{"/pages/{}"})
	r.AddIgnore(PathContainsMulti{"/$batch"})

	f := NewGrouper(r, false, nil).Group([]Operation{
		testOp(t, "GET", "users.onenote.ListPages", "/users/{user-id}/onenote/pages"),
		testOp(t, "GET", "users.onenote.GetPages", "/users/{user-id}/onenote/pages/{onenotePage-id}"),
		testOp(t, "POST", "batch", "/$batch"),
	})
	assert.Equal(t, 2, f.Filtered)
	onenote := f.Node("onenote")
	require.NotNil(t, onenote)
	assert.Equal(t, []string{"ListPages"}, opNames(onenote.Collection))
}

func TestGroupWarnsOnUnmatchedPath(t *testing.T) {
	f := NewGrouper(NewRegistry(), false, nil).Group([]Operation{
		testOp(t, "GET", "x.GetX", "/{tenant-id}/x"),
	})
	require.Len(t, f.Warnings, 1)
	assert.Equal(t, "/{tenant-id}/x", f.Warnings[0].Path)
	assert.Empty(t, f.Nodes)
}

func TestGroupMethodNameCollision(t *testing.T) {
	r := NewRegistry()
	r.Add(NewMain("users", ""))
	f := NewGrouper(r, false, nil).Group([]Operation{
		testOp(t, "GET", "users.user.Get", "/users/{user-id}/photo"),
		testOp(t, "GET", "users.user.Get", "/users/{user-id}/manager"),
		testOp(t, "GET", "users.user.ResourceClient", "/users/{user-id}/settings"),
	})
	users := f.Node("users")
	require.NotNil(t, users)
	assert.Equal(t, []string{"Get", "GetPhoto", "ResourceClientSettings"}, opNames(users.ByID))
}
