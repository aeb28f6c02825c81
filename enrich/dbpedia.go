package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"

	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

const (
	DefaultEndpoint = "https://dbpedia.org/sparql"
	ResourcePrefix  = "http://dbpedia.org/resource/"
)

// dbpediaFields binds SPARQL variables to the predicates they are read from.
// Variable names are the source field names understood by Mapping.
var dbpediaFields = []struct{ name, predicate, filter string }{
	{"label", "rdfs:label", "lang(?label) = 'en'"},
	{"abstract", "dbo:abstract", "lang(?abstract) = 'en'"},
	{"thumbnail", "dbo:thumbnail", ""},
	{"energy_kj", "dbo:energyPer100g", ""},
	{"carbs", "dbo:carbohydratePer100g", ""},
	{"protein", "dbo:proteinPer100g", ""},
	{"fat", "dbo:fatPer100g", ""},
	{"fiber", "dbp:fiber", ""},
	{"sugar", "dbp:sugars", ""},
	{"water", "dbp:water", ""},
	{"vitaminC", "dbp:vitc", ""},
	{"vitaminA", "dbp:vitaUg", ""},
	{"vitaminB6", "dbp:vitb6Mg", ""},
	{"calcium", "dbp:calciumMg", ""},
	{"iron", "dbp:ironMg", ""},
	{"sodium", "dbp:sodiumMg", ""},
	{"potassium", "dbp:potassiumMg", ""},
	{"magnesium", "dbp:magnesiumMg", ""},
	{"zinc", "dbp:zincMg", ""},
}

// DBpedia resolves ingredients against the DBpedia SPARQL endpoint.
type DBpedia struct {
	client *resty.Client
	log    *logger.Logger
}

// NewDBpedia creates a client for endpoint, or DefaultEndpoint when empty.
func NewDBpedia(endpoint string, timeout time.Duration, log *logger.Logger) *DBpedia {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/sparql-results+json").
		SetHeader("User-Agent", "mealgraph-enricher/1.0")
	return &DBpedia{client: client, log: log.With("component", "DBpedia")}
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// ResourceName turns an ingredient name into a DBpedia resource name: first
// letter upper-cased, spaces as underscores, commas and IRI-unsafe characters
// dropped.
func ResourceName(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`,<>"{}|^\`+"`", r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return ""
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Query returns the SPARQL query reading every mapped field of resource.
func Query(resource string) string {
	var b strings.Builder
	b.WriteString("PREFIX dbo: <http://dbpedia.org/ontology/>\n")
	b.WriteString("PREFIX dbp: <http://dbpedia.org/property/>\n")
	b.WriteString("PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>\n")
	b.WriteString("SELECT")
	for _, f := range dbpediaFields {
		b.WriteString(" ?" + f.name)
	}
	b.WriteString(" WHERE {\n")
	for _, f := range dbpediaFields {
		fmt.Fprintf(&b, "  OPTIONAL { <%s> %s ?%s .", resource, f.predicate, f.name)
		if f.filter != "" {
			fmt.Fprintf(&b, " FILTER (%s)", f.filter)
		}
		b.WriteString(" }\n")
	}
	b.WriteString("} LIMIT 1\n")
	return b.String()
}

// Lookup fetches the DBpedia resource named after the ingredient. A resource
// without label or abstract is reported as not found.
func (d *DBpedia) Lookup(ctx context.Context, name string) (Result, error) {
	rn := ResourceName(name)
	if rn == "" {
		return Result{}, nil
	}
	resource := ResourcePrefix + rn

	var out sparqlResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":  Query(resource),
			"format": "application/sparql-results+json",
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return Result{}, fmt.Errorf("dbpedia lookup %q: %w", name, err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("dbpedia lookup %q: unexpected status %s", name, resp.Status())
	}

	fields := map[string]string{}
	if len(out.Results.Bindings) > 0 {
		for k, v := range out.Results.Bindings[0] {
			if v.Value != "" {
				fields[k] = v.Value
			}
		}
	}
	if fields["label"] == "" && fields["abstract"] == "" {
		d.log.Debug("no dbpedia resource", "ingredient", name, "resource", resource)
		return Result{Fields: fields}, nil
	}
	fields["resource"] = resource
	return Result{Found: true, Fields: fields}, nil
}
