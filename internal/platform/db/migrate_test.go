package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/procurement?sslmode=disable": "pgx5://u:p@localhost:5432/procurement?sslmode=disable",
		"postgresql://localhost/procurement":                        "pgx5://localhost/procurement",
		"pgx5://localhost/procurement":                              "pgx5://localhost/procurement",
	}
	for in, want := range cases {
		require.Equal(t, want, MigrateURL(in), in)
	}
}
