package resolve

import (
	"encoding/json"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
)

// Graph wire format. Shared by the cache round-trip and the external
// resolver protocol, so a cached graph and an exec-resolver response are
// the same document.

type identityDoc struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Variant string `json:"variant,omitempty"` // canonical form
}

func identityToDoc(id recipe.Identity) identityDoc {
	return identityDoc{Name: id.Name, Version: id.Version, Variant: id.Variant}
}

func (d identityDoc) identity() recipe.Identity {
	return recipe.Identity{Name: d.Name, Version: d.Version, Variant: d.Variant}
}

type nodeDoc struct {
	Name          string             `json:"name"`
	Version       string             `json:"version"`
	Variant       map[string]string  `json:"variant,omitempty"`
	Requires      []identityDoc      `json:"requires,omitempty"`
	BuildRequires []identityDoc      `json:"build_requires,omitempty"`
	Build         recipe.BuildSpec   `json:"build"`
	Source        *recipe.SourceSpec `json:"source,omitempty"`
	RecipeDir     string             `json:"recipe_dir,omitempty"`
}

type graphDoc struct {
	Root  identityDoc `json:"root"`
	Nodes []nodeDoc   `json:"nodes"`
}

// EncodeGraph serializes a graph to its wire form. Node order is
// deterministic so equal graphs encode to equal bytes.
func EncodeGraph(g *Graph) ([]byte, error) {
	doc := graphDoc{Root: identityToDoc(g.Root)}
	for _, n := range g.SortedNodes() {
		nd := nodeDoc{
			Name:      n.ID.Name,
			Version:   n.ID.Version,
			Variant:   n.Variant,
			Build:     n.Build,
			Source:    n.Source,
			RecipeDir: n.RecipeDir,
		}
		for _, dep := range n.Requires {
			nd.Requires = append(nd.Requires, identityToDoc(dep))
		}
		for _, dep := range n.BuildRequires {
			nd.BuildRequires = append(nd.BuildRequires, identityToDoc(dep))
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return json.Marshal(doc)
}

// DecodeGraph parses the wire form back into a graph. The result is not
// closure-checked here; callers run Graph.Validate.
func DecodeGraph(data []byte) (*Graph, error) {
	var doc graphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode resolved graph")
	}

	g := &Graph{Root: doc.Root.identity(), Nodes: make(map[recipe.Identity]*Node, len(doc.Nodes))}
	for _, nd := range doc.Nodes {
		variant := recipe.Variant(nd.Variant)
		id := recipe.Identity{Name: nd.Name, Version: nd.Version, Variant: variant.Canon()}
		n := &Node{
			ID:        id,
			Variant:   variant,
			Build:     nd.Build,
			Source:    nd.Source,
			RecipeDir: nd.RecipeDir,
		}
		for _, dep := range nd.Requires {
			n.Requires = append(n.Requires, dep.identity())
		}
		for _, dep := range nd.BuildRequires {
			n.BuildRequires = append(n.BuildRequires, dep.identity())
		}
		g.Nodes[id] = n
	}
	return g, nil
}
