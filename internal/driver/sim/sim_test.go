package sim

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shaiso/Wayfinder/internal/domain"
	"github.com/shaiso/Wayfinder/internal/driver"
)

var _ driver.Driver = (*Driver)(nil)

func candidate(sel string) domain.SelectorCandidate {
	return domain.SelectorCandidate{Selector: sel}
}

func twoPages() (*Page, *Page) {
	home := &Page{
		URL:   "https://example.com/",
		Title: "Home",
		HTML:  "<h1>Home</h1>",
		Elements: []*Element{
			{ID: "link-1", Tag: "a", Text: "Products", Visible: true, Enabled: true,
				Selectors: []string{"#products-link"}},
		},
	}
	products := &Page{
		URL:   "https://example.com/products",
		Title: "Products",
		Elements: []*Element{
			{ID: "item-1", Tag: "li", Text: "Widget", Visible: true, Enabled: true,
				Selectors: []string{".item"}},
			{ID: "item-2", Tag: "li", Text: "Gadget", Visible: true, Enabled: true,
				Selectors: []string{".item"}},
		},
	}
	return home, products
}

func TestNavigate_History(t *testing.T) {
	home, products := twoPages()
	d := New(home, products)
	ctx := context.Background()

	res, err := d.Navigate(ctx, "https://example.com/products", driver.NavigateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 200 {
		t.Errorf("registered page must return 200, got %d", res.Status)
	}

	if url, _ := d.CurrentURL(ctx); url != "https://example.com/products" {
		t.Errorf("unexpected current url: %s", url)
	}

	// back/forward ходят по истории.
	if _, err := d.Act(ctx, nil, "back", driver.ActionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url, _ := d.CurrentURL(ctx); url != "https://example.com/" {
		t.Errorf("expected home after back, got %s", url)
	}

	if _, err := d.Act(ctx, nil, "forward", driver.ActionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url, _ := d.CurrentURL(ctx); url != "https://example.com/products" {
		t.Errorf("expected products after forward, got %s", url)
	}
}

func TestNavigate_UnknownURLIs404(t *testing.T) {
	home, _ := twoPages()
	d := New(home)

	res, err := d.Navigate(context.Background(), "https://example.com/missing", driver.NavigateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 404 {
		t.Errorf("unknown page must return 404, got %d", res.Status)
	}
}

func TestNavigate_TruncatesForwardHistory(t *testing.T) {
	home, products := twoPages()
	d := New(home, products)
	ctx := context.Background()

	if _, err := d.Navigate(ctx, "https://example.com/products", driver.NavigateOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Act(ctx, nil, "back", driver.ActionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Navigate(ctx, "https://example.com/other", driver.NavigateOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Forward-ветка обрезана, forward остаётся на месте.
	if _, err := d.Act(ctx, nil, "forward", driver.ActionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url, _ := d.CurrentURL(ctx); url != "https://example.com/other" {
		t.Errorf("forward branch must be truncated, got %s", url)
	}
}

func TestLocate(t *testing.T) {
	_, products := twoPages()
	d := New(products)
	ctx := context.Background()

	tests := []struct {
		name    string
		sel     string
		wantErr error
	}{
		{name: "not found", sel: "#missing", wantErr: driver.ErrNotFound},
		{name: "ambiguous", sel: ".item", wantErr: driver.ErrAmbiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Locate(ctx, candidate(tt.sel))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	page := &Page{URL: "u", Elements: []*Element{
		{ID: "e1", Tag: "input", Visible: true, Enabled: true, Selectors: []string{"#email"}},
	}}
	d = New(page)
	el, err := d.Locate(ctx, candidate("#email"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if el.ID != "e1" || el.Tag != "input" || !el.Visible || !el.Enabled {
		t.Errorf("unexpected handle: %+v", el)
	}
}

func TestAct_TypeSetsValue(t *testing.T) {
	page := &Page{URL: "u", Elements: []*Element{
		{ID: "e1", Tag: "input", Visible: true, Enabled: true, Selectors: []string{"#email"}},
	}}
	d := New(page)
	ctx := context.Background()

	el, err := d.Locate(ctx, candidate("#email"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := d.Act(ctx, el, "type", driver.ActionOptions{Value: "admin@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := d.Extract(ctx, driver.ExtractRequest{
		Mode: driver.ExtractAttribute, Element: el, Attribute: "value",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "admin@example.com" {
		t.Errorf("expected typed value, got %v", got)
	}
}

func TestAct_NotInteractable(t *testing.T) {
	page := &Page{URL: "u", Elements: []*Element{
		{ID: "e1", Tag: "button", Visible: true, Enabled: false, Selectors: []string{"#save"}},
	}}
	d := New(page)
	ctx := context.Background()

	el, err := d.Locate(ctx, candidate("#save"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = d.Act(ctx, el, "click", driver.ActionOptions{})
	if !errors.Is(err, driver.ErrNotInteractable) {
		t.Errorf("expected ErrNotInteractable, got %v", err)
	}
}

func TestAct_Close(t *testing.T) {
	home, _ := twoPages()
	d := New(home)

	if _, err := d.Act(context.Background(), nil, "close", driver.ActionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Closed() {
		t.Error("driver must report closed")
	}
}

func TestExtract(t *testing.T) {
	home, products := twoPages()
	d := New(products, home)
	d.SetCookie("session", "abc")
	d.SetStorageItem("theme", "dark")
	ctx := context.Background()

	t.Run("multiple", func(t *testing.T) {
		got, err := d.Extract(ctx, driver.ExtractRequest{Mode: driver.ExtractMultiple, Selector: ".item"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, []any{"Widget", "Gadget"}) {
			t.Errorf("unexpected multiple extraction: %v", got)
		}
	})

	t.Run("url", func(t *testing.T) {
		got, err := d.Extract(ctx, driver.ExtractRequest{Mode: driver.ExtractURL})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "https://example.com/products" {
			t.Errorf("unexpected url: %v", got)
		}
	})

	t.Run("cookies", func(t *testing.T) {
		got, err := d.Extract(ctx, driver.ExtractRequest{Mode: driver.ExtractCookies})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, map[string]any{"session": "abc"}) {
			t.Errorf("unexpected cookies: %v", got)
		}
	})

	t.Run("local storage", func(t *testing.T) {
		got, err := d.Extract(ctx, driver.ExtractRequest{Mode: driver.ExtractLocalStorage})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, map[string]any{"theme": "dark"}) {
			t.Errorf("unexpected storage: %v", got)
		}
	})

	t.Run("page screenshot", func(t *testing.T) {
		got, err := d.Extract(ctx, driver.ExtractRequest{Mode: driver.ExtractScreenshot})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got.([]byte)) != "screenshot:page" {
			t.Errorf("unexpected screenshot payload: %v", got)
		}
	})
}

func TestInjectError(t *testing.T) {
	home, _ := twoPages()
	d := New(home)
	ctx := context.Background()

	boom := errors.New("network down")
	d.InjectError("navigate", boom, 2)

	for i := 0; i < 2; i++ {
		if _, err := d.Navigate(ctx, "https://example.com/", driver.NavigateOptions{}); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected injected error, got %v", i+1, err)
		}
	}

	// Очередь исчерпана.
	if _, err := d.Navigate(ctx, "https://example.com/", driver.NavigateOptions{}); err != nil {
		t.Errorf("expected success after queue drained, got %v", err)
	}
}

func TestWaitFor(t *testing.T) {
	home, products := twoPages()
	d := New(home, products)

	t.Run("load state is immediate", func(t *testing.T) {
		err := d.WaitFor(context.Background(), driver.WaitCondition{Kind: "load_state", LoadState: "load"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("selector appears after navigation", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			done <- d.WaitFor(ctx, driver.WaitCondition{Kind: "selector", Selector: ".item"})
		}()

		time.Sleep(20 * time.Millisecond)
		if _, err := d.Navigate(context.Background(), "https://example.com/products", driver.NavigateOptions{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := <-done; err != nil {
			t.Errorf("wait must succeed once the selector exists: %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := d.WaitFor(ctx, driver.WaitCondition{Kind: "selector", Selector: "#never"})
		if !errors.Is(err, driver.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("url pattern", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := d.WaitFor(ctx, driver.WaitCondition{Kind: "url", URLPattern: "*/products"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestMatchURL(t *testing.T) {
	tests := []struct {
		url     string
		pattern string
		want    bool
	}{
		{url: "https://example.com/products", pattern: "", want: true},
		{url: "https://example.com/products", pattern: "products", want: true},
		{url: "https://example.com/products", pattern: "checkout", want: false},
		{url: "https://example.com/products", pattern: "https://*/products", want: true},
		{url: "https://example.com/products", pattern: "*/checkout", want: false},
		{url: "https://example.com/orders/42/edit", pattern: "*/orders/*/edit", want: true},
	}

	for _, tt := range tests {
		if got := matchURL(tt.url, tt.pattern); got != tt.want {
			t.Errorf("matchURL(%q, %q) = %v, want %v", tt.url, tt.pattern, got, tt.want)
		}
	}
}
