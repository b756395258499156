package intent

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Route maps a spoken phrase to an application path.
type Route struct {
	Phrase string `yaml:"phrase" validate:"required"`
	Path   string `yaml:"path" validate:"required,startswith=/"`
}

// Faq maps a question keyword to a canned answer.
type Faq struct {
	Question string `yaml:"question" validate:"required"`
	Answer   string `yaml:"answer" validate:"required"`
}

// RouteTable is an ordered, read-only phrase -> path table.
// Order matters: the first matching phrase wins.
type RouteTable struct {
	routes []Route
}

func NewRouteTable(routes ...Route) *RouteTable {
	t := &RouteTable{routes: make([]Route, 0, len(routes))}
	for _, r := range routes {
		t.routes = append(t.routes, Route{
			Phrase: strings.ToLower(strings.TrimSpace(r.Phrase)),
			Path:   r.Path,
		})
	}
	return t
}

// Routes returns a copy of the table in insertion order.
func (t *RouteTable) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Paths returns the distinct paths in first-seen order.
func (t *RouteTable) Paths() []string {
	seen := make(map[string]bool, len(t.routes))
	var out []string
	for _, r := range t.routes {
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		out = append(out, r.Path)
	}
	return out
}

// FaqTable is an ordered, read-only question -> answer table.
type FaqTable struct {
	faqs []Faq
}

func NewFaqTable(faqs ...Faq) *FaqTable {
	t := &FaqTable{faqs: make([]Faq, 0, len(faqs))}
	for _, f := range faqs {
		t.faqs = append(t.faqs, Faq{
			Question: strings.ToLower(strings.TrimSpace(f.Question)),
			Answer:   f.Answer,
		})
	}
	return t
}

func (t *FaqTable) Faqs() []Faq {
	return append([]Faq(nil), t.faqs...)
}

// TableFile is the on-disk layout of a tables override file.
type TableFile struct {
	Routes []Route `yaml:"routes" validate:"dive"`
	Faqs   []Faq   `yaml:"faqs" validate:"dive"`
}

// LoadTables reads a YAML tables file. Sections left empty fall back to the
// built-in defaults.
func LoadTables(path string) (*RouteTable, *FaqTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read tables: %w", err)
	}
	return ParseTables(data)
}

func ParseTables(data []byte) (*RouteTable, *FaqTable, error) {
	var tf TableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("unmarshal tables: %w", err)
	}

	v := validator.New()
	if err := v.Struct(tf); err != nil {
		return nil, nil, fmt.Errorf("validate tables: %w", err)
	}

	routes := DefaultRoutes()
	if len(tf.Routes) > 0 {
		routes = NewRouteTable(tf.Routes...)
	}
	faqs := DefaultFaqs()
	if len(tf.Faqs) > 0 {
		faqs = NewFaqTable(tf.Faqs...)
	}
	return routes, faqs, nil
}

// DefaultRoutes is the route table of the web application.
func DefaultRoutes() *RouteTable {
	return NewRouteTable(
		Route{"home", "/"},
		Route{"landing", "/"},
		Route{"main page", "/"},
		Route{"map editor", "/admin/map-editor"},
		Route{"map", "/map"},
		Route{"train map", "/map"},
		Route{"login", "/login"},
		Route{"sign in", "/login"},
		Route{"register", "/register"},
		Route{"signup", "/register"},
		Route{"sign up", "/register"},
		Route{"profile", "/profile"},
		Route{"account", "/profile"},
		Route{"train booking", "/booking/train"},
		Route{"book ticket", "/booking/train"},
		Route{"booking", "/booking/train"},
		Route{"transport booking", "/booking/transport"},
		Route{"cab booking", "/booking/transport"},
		Route{"taxi", "/booking/transport"},
		Route{"pnr", "/pnr"},
		Route{"pnr status", "/pnr"},
		Route{"check pnr", "/pnr"},
		Route{"admin", "/admin"},
		Route{"voice assistant", "/assistant"},
		Route{"assistant", "/assistant"},
		Route{"route planner", "/route-planner"},
		Route{"routes", "/route-planner"},
		Route{"settings", "/settings"},
	)
}

// DefaultFaqs holds the canned answers for common questions. Navigation is
// checked first, so a key containing a route phrase ("pnr", "map") would
// never be answered.
func DefaultFaqs() *FaqTable {
	return NewFaqTable(
		Faq{"reservation status", "To check your PNR status, open the PNR page and enter your 10-digit PNR number. You will see your booking status, train details and journey information."},
		Faq{"what is sahyatri", "Sahyatri is a train travel companion that helps you track trains, check PNR status, find your way around stations and book tickets."},
		Faq{"buy a ticket", "Open the booking page, enter your source, destination and date of travel, pick a train and follow the steps to complete the payment."},
		Faq{"train location", "The train map shows train locations in real time. Search for your train number or name and the map will show its current location and route."},
		Faq{"how to find platform", "Your platform is shown on the PNR status page once your ticket is confirmed. You can also check the station information screens or ask station staff."},
		Faq{"passenger name record", "PNR (Passenger Name Record) is the unique 10-digit number assigned to your ticket. It holds all your journey and passenger details."},
		Faq{"train schedule", "Search for your train on the home or booking page to see departure and arrival times at every station on the route."},
		Faq{"how to track train", "Enter the train number on the train map page to see the current location and status of your train."},
		Faq{"station facilities", "Most major stations offer waiting rooms, food stalls, ATMs, medical services, wheelchairs and luggage assistance. Facilities vary by station."},
		Faq{"baggage", "You can store your luggage in the overhead racks or the designated luggage areas on the train."},
		Faq{"wifi", "Free WiFi is available at most major stations. Look for the station network in your WiFi settings."},
		Faq{"accessibility", "Wheelchair access is available at all platforms and staff are ready to assist if needed."},
		Faq{"help", "I can help you move around the app, answer questions about train travel, assist with bookings and check train information. What do you need?"},
	)
}
