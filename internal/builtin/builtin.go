// Package builtin registers the server entries of the plugins bundled with
// the host.
package builtin

import (
	"github.com/HerbHall/strata/pkg/plugin"
)

// Names lists the bundled plugins registered by Register.
var Names = []string{ContentManager, Upload}

// Register adds every bundled plugin entry to c.
func Register(c *plugin.Catalog) error {
	if err := c.Register(ContentManager, contentManager); err != nil {
		return err
	}
	return c.Register(Upload, upload)
}

// NewCatalog returns a catalog holding the bundled plugin entries.
func NewCatalog() *plugin.Catalog {
	c := plugin.NewCatalog()
	if err := Register(c); err != nil {
		panic(err)
	}
	return c
}
