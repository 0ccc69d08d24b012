package config

import "github.com/spf13/afero"

// Mocked out for unit testing with afero.NewMemMapFs().
var fs = afero.NewOsFs()
