package identity

import (
	"fmt"
	"strings"
)

// CloudInstance selects the sign-in host.
type CloudInstance int

const (
	AzurePublic CloudInstance = iota
	AzureChina
	AzureGermany
	AzureUsGovernment
	OneDriveLegacy
)

var cloudHosts = map[CloudInstance]string{
	AzurePublic:       "https://login.microsoftonline.com",
	AzureChina:        "https://login.chinacloudapi.cn",
	AzureGermany:      "https://login.microsoftonline.de",
	AzureUsGovernment: "https://login.microsoftonline.us",
	OneDriveLegacy:    "https://login.live.com",
}

var cloudNames = map[CloudInstance]string{
	AzurePublic:       "AzurePublic",
	AzureChina:        "AzureChina",
	AzureGermany:      "AzureGermany",
	AzureUsGovernment: "AzureUsGovernment",
	OneDriveLegacy:    "OneDriveLegacy",
}

func (c CloudInstance) String() string {
	if name, ok := cloudNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CloudInstance(%d)", int(c))
}

// Host returns the login host of the cloud.
func (c CloudInstance) Host() string {
	if host, ok := cloudHosts[c]; ok {
		return host
	}
	return cloudHosts[AzurePublic]
}

// ParseCloudInstance accepts the names printed by String, case-insensitively.
func ParseCloudInstance(name string) (CloudInstance, error) {
	if name == "" {
		return AzurePublic, nil
	}
	for c, n := range cloudNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return AzurePublic, fmt.Errorf("unknown cloud instance %q", name)
}

// Well-known tenant kinds.
const (
	TenantCommon        = "common"
	TenantOrganizations = "organizations"
	TenantConsumers     = "consumers"
	TenantADFS          = "adfs"
)

// Authority is the cloud plus tenant (or tenant kind) the endpoints are
// derived from. Host, when set, replaces the cloud's login host; tests
// point it at a local server.
type Authority struct {
	Cloud  CloudInstance
	Tenant string
	Host   string
}

// Common is the multi-tenant authority of the public cloud.
func Common() Authority { return Authority{Tenant: TenantCommon} }

// TenantAuthority is a single-tenant authority of the public cloud.
func TenantAuthority(tenant string) Authority { return Authority{Tenant: tenant} }

// TenantOrDefault returns the tenant segment, "common" when unset.
func (a Authority) TenantOrDefault() string {
	if a.Tenant == "" {
		return TenantCommon
	}
	return a.Tenant
}

func (a Authority) host() string {
	if a.Host != "" {
		return strings.TrimRight(a.Host, "/")
	}
	return a.Cloud.Host()
}

func (a Authority) endpoint(name string) string {
	if a.Cloud == OneDriveLegacy {
		return a.host() + "/oauth20_" + name + ".srf"
	}
	return a.host() + "/" + a.TenantOrDefault() + "/oauth2/v2.0/" + name
}

// AuthorizeEndpoint is where the user signs in.
func (a Authority) AuthorizeEndpoint() string { return a.endpoint("authorize") }

// TokenEndpoint is where every flow redeems its grant.
func (a Authority) TokenEndpoint() string { return a.endpoint("token") }

// DeviceCodeEndpoint starts the device authorization grant.
func (a Authority) DeviceCodeEndpoint() string {
	if a.Cloud == OneDriveLegacy {
		return a.host() + "/oauth20_connect.srf"
	}
	return a.endpoint("devicecode")
}

// allowsROPC reports whether the password grant may run here. It needs an
// organizational tenant.
func (a Authority) allowsROPC() bool {
	switch strings.ToLower(a.TenantOrDefault()) {
	case TenantCommon, TenantConsumers, TenantADFS:
		return false
	}
	return a.Cloud != OneDriveLegacy
}
