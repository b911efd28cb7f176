//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestRoot(t *testing.T) {
	resp := doGet(t, "/api/")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[map[string]string](t, resp)
	if body["message"] == "" {
		t.Error("banner message is empty")
	}
}

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != seededProducts {
		t.Fatalf("expected %d products, got %d", seededProducts, len(products))
	}
	for _, p := range products {
		if !p.IsActive {
			t.Errorf("product %s: inactive product listed", p.ID)
		}
		if p.ImageURL == "" {
			t.Errorf("product %s: image_url is empty", p.ID)
		}
	}
}

func TestListProducts_Fields(t *testing.T) {
	phone := productByName(t, "iPhone 15 Pro Max")

	if phone.Brand != "Apple" {
		t.Errorf("brand: got %q, want %q", phone.Brand, "Apple")
	}
	if phone.Price != 159900 {
		t.Errorf("price: got %v, want 159900", phone.Price)
	}
	if phone.Category != "Smartphones" {
		t.Errorf("category: got %q, want %q", phone.Category, "Smartphones")
	}
}

func TestListProducts_Category(t *testing.T) {
	resp := doGet(t, "/api/products?category=Headphones")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != 1 || products[0].Name != "Sony WH-1000XM5" {
		t.Fatalf("expected only Sony WH-1000XM5, got %+v", products)
	}
}

func TestListProducts_Limit(t *testing.T) {
	resp := doGet(t, "/api/products?limit=2")
	defer resp.Body.Close()

	if got := len(decodeJSON[[]productResponse](t, resp)); got != 2 {
		t.Fatalf("expected 2 products, got %d", got)
	}

	bad := doGet(t, "/api/products?limit=abc")
	defer bad.Body.Close()

	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}

func TestGetProduct(t *testing.T) {
	want := productByName(t, "Apple Watch Series 9")

	resp := doGet(t, "/api/products/"+want.ID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	product := decodeJSON[productResponse](t, resp)
	if product.ID != want.ID {
		t.Errorf("id: got %q, want %q", product.ID, want.ID)
	}
	if product.Name != want.Name {
		t.Errorf("name: got %q, want %q", product.Name, want.Name)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/products/does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != 404 {
		t.Errorf("error code: got %d, want 404", errResp.Code)
	}
	if errResp.Entity != "does-not-exist" {
		t.Errorf("entity: got %q, want %q", errResp.Entity, "does-not-exist")
	}
}

func TestListCategories(t *testing.T) {
	resp := doGet(t, "/api/categories")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	categories := decodeJSON[[]categoryResponse](t, resp)
	if len(categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(categories))
	}
}
