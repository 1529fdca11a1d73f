package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query string
		want  Pagination
	}{
		{"", Pagination{Page: 1, Limit: 20, Offset: 0}},
		{"?page=3&limit=10", Pagination{Page: 3, Limit: 10, Offset: 20}},
		{"?page=0&limit=-5", Pagination{Page: 1, Limit: 20, Offset: 0}},
		{"?page=x&limit=500", Pagination{Page: 1, Limit: 100, Offset: 0}},
	}

	for _, tc := range cases {
		var got Pagination
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error {
			got = ParsePagination(c)
			return nil
		})
		if _, err := app.Test(httptest.NewRequest("GET", "/"+tc.query, nil)); err != nil {
			t.Fatalf("request: %v", err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %+v, got %+v", tc.query, tc.want, got)
		}
	}
}
