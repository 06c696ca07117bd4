package dashboard

import (
	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/authz"
)

// Section is one entry of the admin sidebar.
type Section struct {
	Slug  string
	Title string
}

// Href is the section's route.
func (s Section) Href() string {
	if s.Slug == "" {
		return "/admin"
	}
	return "/admin/" + s.Slug
}

var sections = []Section{
	{Slug: "", Title: "Dashboard"},
	{Slug: "products", Title: "Products"},
	{Slug: "orders", Title: "Orders"},
	{Slug: "customers", Title: "Customers"},
	{Slug: "subscriptions", Title: "Subscriptions"},
	{Slug: "payments", Title: "Payments"},
	{Slug: "categories", Title: "Categories"},
	{Slug: "shipping", Title: "Shipping"},
	{Slug: "analytics", Title: "Analytics"},
	{Slug: "users", Title: "Users"},
	{Slug: "settings", Title: "Settings"},
}

// FindSection resolves a slug to a known section.
func FindSection(slug string) (Section, bool) {
	if slug == "" {
		return Section{}, false
	}
	for _, s := range sections {
		if s.Slug == slug {
			return s, true
		}
	}
	return Section{}, false
}

// SectionLink is a sidebar entry as seen by one admin.
type SectionLink struct {
	Title   string
	Href    string
	Allowed bool
}

// Sidebar lists every section with the admin's route access resolved.
func Sidebar(engine *authz.Engine, admin *accounts.AdminAccount) []SectionLink {
	links := make([]SectionLink, 0, len(sections))
	for _, s := range sections {
		href := s.Href()
		links = append(links, SectionLink{
			Title:   s.Title,
			Href:    href,
			Allowed: engine.CanAccessRoute(admin, href),
		})
	}
	return links
}
