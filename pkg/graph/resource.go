package graph

// ResourceIdentity names a kind of resource client. Its value is the URL
// path segment of that resource, e.g. "users" or "mailFolders".
type ResourceIdentity string

func (r ResourceIdentity) String() string { return string(r) }

// ResourceConfig locates a resource client: the URL its path templates are
// relative to, its identity and the id bound to it, if any. Templates start
// with the identity segment, e.g. "/users/{{RID}}/messages".
type ResourceConfig struct {
	BaseURL  *URL
	Identity ResourceIdentity
	ID       string
}

// HasID reports whether an id is bound.
func (c ResourceConfig) HasID() bool { return c.ID != "" }

// Child returns the config of a child client. The parent's identity and,
// when bound, its id are appended to the URL; the child takes over the
// identity and id slots.
func (c ResourceConfig) Child(child ResourceIdentity, id string) ResourceConfig {
	base := c.BaseURL.Clone().ExtendPath(string(c.Identity))
	if c.ID != "" {
		base.ExtendPath(c.ID)
	}
	return ResourceConfig{BaseURL: base, Identity: child, ID: id}
}

// ResourceClient is the runtime half of a generated client. Navigation
// returns new values, so clients can be shared freely.
type ResourceClient struct {
	client *Client
	config ResourceConfig
}

// NewResourceClient wraps a config for c.
func NewResourceClient(c *Client, config ResourceConfig) ResourceClient {
	return ResourceClient{client: c, config: config}
}

// Config returns the resource config.
func (r ResourceClient) Config() ResourceConfig { return r.config }

// Client returns the underlying Graph client.
func (r ResourceClient) Client() *Client { return r.client }

// Collection navigates to a child collection.
func (r ResourceClient) Collection(child ResourceIdentity) ResourceClient {
	return ResourceClient{client: r.client, config: r.config.Child(child, "")}
}

// ByID navigates to a child bound to id.
func (r ResourceClient) ByID(child ResourceIdentity, id string) ResourceClient {
	return ResourceClient{client: r.client, config: r.config.Child(child, id)}
}

// WithID returns this client bound to id, keeping its URL and identity.
func (r ResourceClient) WithID(id string) ResourceClient {
	cfg := r.config
	cfg.ID = id
	return ResourceClient{client: r.client, config: cfg}
}

// Request renders template against this client's id and params and
// returns a handler. Rendering errors are deferred to the handler.
func (r ResourceClient) Request(method, template string, params PathParams, body Body, kind ResponseKind) *RequestHandler {
	path, err := RenderPath(template, r.config.ID, params)
	if err != nil {
		return newErrorHandler(r.client, method, r.config.BaseURL.Clone(), err)
	}
	u := r.config.BaseURL.Clone().ExtendPath(path)
	return newRequestHandler(r.client, RequestComponents{Method: method, URL: u, Kind: kind}, body)
}
