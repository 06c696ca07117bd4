package authz

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// RoutePermissions maps a route path to the permission names it requires.
// Routes absent from the map require nothing.
type RoutePermissions map[string][]string

type routeFile struct {
	Routes map[string][]string `yaml:"routes"`
}

// DefaultRoutePermissions returns the built-in route map.
func DefaultRoutePermissions() RoutePermissions {
	routes, err := LoadRoutePermissions(bytes.NewReader(defaultRoutes))
	if err != nil {
		panic(fmt.Sprintf("authz: embedded routes: %v", err))
	}
	return routes
}

// LoadRoutePermissionsFile reads a YAML route map from disk.
func LoadRoutePermissionsFile(name string) (RoutePermissions, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("authz: open routes: %w", err)
	}
	defer f.Close()
	return LoadRoutePermissions(f)
}

// LoadRoutePermissions parses a YAML document of the form
//
//	routes:
//	  /admin/users: [manage_users]
func LoadRoutePermissions(r io.Reader) (RoutePermissions, error) {
	var doc routeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("authz: decode routes: %w", err)
	}
	routes := make(RoutePermissions, len(doc.Routes))
	for route, perms := range doc.Routes {
		if !strings.HasPrefix(route, "/") {
			return nil, fmt.Errorf("authz: route %q must be an absolute path", route)
		}
		seen := make(map[string]struct{}, len(perms))
		cleaned := make([]string, 0, len(perms))
		for _, p := range perms {
			p = strings.TrimSpace(p)
			if p == "" {
				return nil, fmt.Errorf("authz: route %q lists an empty permission", route)
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			cleaned = append(cleaned, p)
		}
		routes[cleanRoute(route)] = cleaned
	}
	return routes, nil
}

// Required returns the permissions route requires; nil when unlisted.
func (m RoutePermissions) Required(route string) []string {
	return m[cleanRoute(route)]
}

// Routes lists the mapped routes in lexical order.
func (m RoutePermissions) Routes() []string {
	out := make([]string, 0, len(m))
	for route := range m {
		out = append(out, route)
	}
	sort.Strings(out)
	return out
}

func cleanRoute(route string) string {
	if route == "" {
		return "/"
	}
	return path.Clean("/" + strings.TrimPrefix(route, "/"))
}
