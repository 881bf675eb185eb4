package captcha

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const challengePage = `
	<html><body>
		<form method="get" action="/errors/validateCaptcha">
			<input type="hidden" name="amzn" value="token123">
			<input type="hidden" name="amzn-r" value="/dp/B0TEST12345">
			<input type="text" name="field-keywords">
		</form>
	</body></html>`

func TestSolveResubmitsHiddenFields(t *testing.T) {
	s := NewSolver("https://shop.example", 100)

	var fetchedURL string
	fetch := func(_ context.Context, rawURL string) (int, []byte, error) {
		fetchedURL = rawURL
		return 200, []byte(strings.Repeat("x", 500)), nil
	}

	solved, err := s.Solve(context.Background(), fetch, []byte(challengePage))
	require.NoError(t, err)
	assert.True(t, solved)

	assert.Contains(t, fetchedURL, "https://shop.example/errors/validateCaptcha?")
	assert.Contains(t, fetchedURL, "amzn=token123")
	assert.Contains(t, fetchedURL, "amzn-r=%2Fdp%2FB0TEST12345")
	// Only hidden fields are echoed back.
	assert.NotContains(t, fetchedURL, "field-keywords")
}

func TestSolveSmallResponseMeansUnsolved(t *testing.T) {
	s := NewSolver("https://shop.example", 1000)

	fetch := func(_ context.Context, _ string) (int, []byte, error) {
		// Still on the challenge interstitial.
		return 200, []byte("tiny"), nil
	}

	solved, err := s.Solve(context.Background(), fetch, []byte(challengePage))
	require.NoError(t, err)
	assert.False(t, solved)
}

func TestSolveNonOKStatusMeansUnsolved(t *testing.T) {
	s := NewSolver("https://shop.example", 10)

	fetch := func(_ context.Context, _ string) (int, []byte, error) {
		return 503, []byte(strings.Repeat("x", 500)), nil
	}

	solved, err := s.Solve(context.Background(), fetch, []byte(challengePage))
	require.NoError(t, err)
	assert.False(t, solved)
}

func TestSolveNoChallengeForm(t *testing.T) {
	s := NewSolver("https://shop.example", 100)

	fetch := func(_ context.Context, _ string) (int, []byte, error) {
		t.Fatal("fetch must not be called without a challenge form")
		return 0, nil, nil
	}

	_, err := s.Solve(context.Background(), fetch, []byte("<html><body>no form</body></html>"))
	assert.ErrorIs(t, err, ErrNoChallengeForm)
}

func TestSolveFetchErrorSurfaces(t *testing.T) {
	s := NewSolver("https://shop.example", 100)

	fetchErr := errors.New("connection reset")
	fetch := func(_ context.Context, _ string) (int, []byte, error) {
		return 0, nil, fetchErr
	}

	_, err := s.Solve(context.Background(), fetch, []byte(challengePage))
	assert.ErrorIs(t, err, fetchErr)
}

func TestSolveAbsoluteFormAction(t *testing.T) {
	s := NewSolver("https://shop.example", 10)

	page := `<form action="https://other.example/errors/validateCaptcha">
		<input type="hidden" name="amzn" value="tok"></form>`

	var fetchedURL string
	fetch := func(_ context.Context, rawURL string) (int, []byte, error) {
		fetchedURL = rawURL
		return 200, []byte(strings.Repeat("x", 100)), nil
	}

	_, err := s.Solve(context.Background(), fetch, []byte(page))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fetchedURL, "https://other.example/errors/validateCaptcha?"))
}
