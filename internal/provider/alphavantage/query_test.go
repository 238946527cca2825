package alphavantage_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketwatch/internal/provider"
	"marketwatch/internal/provider/alphavantage"
)

func newClient(t *testing.T, httpClient alphavantage.HTTPClient, opts ...alphavantage.Option) *alphavantage.Client {
	t.Helper()
	client, err := alphavantage.New("test-key", append([]alphavantage.Option{alphavantage.WithHTTPClient(httpClient)}, opts...)...)
	require.NoError(t, err)
	return client
}

func TestExchangeRate_QueryParameters(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller and http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			q := req.URL.Query()
			require.Equal(t, "CURRENCY_EXCHANGE_RATE", q.Get("function"))
			require.Equal(t, "BTC", q.Get("from_currency"))
			require.Equal(t, "USD", q.Get("to_currency"))
			require.Equal(t, "test-key", q.Get("apikey"))
			return jsonResponse(http.StatusOK, exchangeRateBody), nil
		}).
		Times(1)

	// Act
	res := newClient(t, httpClient).ExchangeRate(t.Context(), provider.NewInstrument("BTC", "USD"))

	// Assert
	require.Equal(t, provider.Success, res.Outcome)
	require.NoError(t, res.Err)
	require.Contains(t, res.Payload, "Realtime Currency Exchange Rate")
	require.NotEmpty(t, res.Raw)
}

func TestIntraday_QueryParameters_DefaultInterval(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "CRYPTO_INTRADAY", q.Get("function"))
			require.Equal(t, "BTC", q.Get("symbol"))
			require.Equal(t, "USD", q.Get("market"))
			require.Equal(t, "5min", q.Get("interval"))
			return jsonResponse(http.StatusOK, intradayBody), nil
		}).
		Times(1)

	res := newClient(t, httpClient).Intraday(t.Context(), provider.NewInstrument("BTC", "USD"), "")

	require.Equal(t, provider.Success, res.Outcome)
	require.Equal(t, "5min", res.Params.Interval)
}

func TestDaily_QueryParameters(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "DIGITAL_CURRENCY_DAILY", q.Get("function"))
			require.Equal(t, "ETH", q.Get("symbol"))
			require.Equal(t, "EUR", q.Get("market"))
			require.False(t, q.Has("interval"))
			return jsonResponse(http.StatusOK, dailyLegacyBody), nil
		}).
		Times(1)

	res := newClient(t, httpClient).Daily(t.Context(), provider.NewInstrument("ETH", "EUR"))
	require.Equal(t, provider.Success, res.Outcome)
}

func TestQuery_EmptyKeyOmitted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.False(t, req.URL.Query().Has("apikey"))
			return jsonResponse(http.StatusOK, exchangeRateBody), nil
		}).
		Times(1)

	client, err := alphavantage.New("", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)
	client.ExchangeRate(t.Context(), provider.NewInstrument("BTC", "USD"))
}

func TestQuery_Classification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		body    string
		outcome provider.Outcome
		errIs   error
		message string
	}{
		{
			name:    "note at status 200 is throttled",
			status:  http.StatusOK,
			body:    `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`,
			outcome: provider.Throttled,
			errIs:   provider.ErrThrottled,
			message: "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day.",
		},
		{
			name:    "information is throttled",
			status:  http.StatusOK,
			body:    `{"Information": "Please consider spreading out your free API requests more sparingly (1 request per second)."}`,
			outcome: provider.Throttled,
			errIs:   provider.ErrThrottled,
		},
		{
			name:    "success key wins over note",
			status:  http.StatusOK,
			body:    `{"Note": "x", "Realtime Currency Exchange Rate": {}}`,
			outcome: provider.Success,
		},
		{
			name:    "no recognized key",
			status:  http.StatusOK,
			body:    `{"Meta Data": {}}`,
			outcome: provider.MalformedOrMissing,
			errIs:   provider.ErrMalformed,
		},
		{
			name:    "error envelope",
			status:  http.StatusOK,
			body:    `{"Error Message": "Invalid API call."}`,
			outcome: provider.MalformedOrMissing,
			errIs:   provider.ErrMalformed,
			message: "Invalid API call.",
		},
		{
			name:    "invalid json",
			status:  http.StatusOK,
			body:    `<html>maintenance</html>`,
			outcome: provider.MalformedOrMissing,
			errIs:   provider.ErrMalformed,
		},
		{
			name:    "json array",
			status:  http.StatusOK,
			body:    `[1, 2]`,
			outcome: provider.MalformedOrMissing,
			errIs:   provider.ErrMalformed,
		},
		{
			name:    "empty body",
			status:  http.StatusOK,
			body:    ``,
			outcome: provider.MalformedOrMissing,
			errIs:   provider.ErrMalformed,
		},
		{
			name:    "non-2xx even with a data key",
			status:  http.StatusInternalServerError,
			body:    exchangeRateBody,
			outcome: provider.MalformedOrMissing,
			errIs:   provider.ErrMalformed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				Return(jsonResponse(tc.status, tc.body), nil).
				Times(1)

			// Act
			res := newClient(t, httpClient).ExchangeRate(t.Context(), provider.NewInstrument("BTC", "USD"))

			// Assert
			require.Equal(t, tc.outcome, res.Outcome)
			if tc.errIs != nil {
				require.ErrorIs(t, res.Err, tc.errIs)
				require.Nil(t, res.Payload)
			} else {
				require.NoError(t, res.Err)
				require.NotNil(t, res.Payload)
			}
			if tc.message != "" {
				require.Equal(t, tc.message, res.Message)
			}
		})
	}
}

func TestQuery_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}).
		Times(1)

	res := newClient(t, httpClient).ExchangeRate(t.Context(), provider.NewInstrument("BTC", "USD"))

	require.Equal(t, provider.MalformedOrMissing, res.Outcome)
	require.ErrorIs(t, res.Err, provider.ErrMalformed)
}

func TestQuery_TimeoutBoundsTheCall(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}).
		Times(1)

	client := newClient(t, httpClient, alphavantage.WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := client.ExchangeRate(t.Context(), provider.NewInstrument("BTC", "USD"))

	require.Equal(t, provider.MalformedOrMissing, res.Outcome)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestQuery_LimiterErrorSkipsRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	limiter := &countingLimiter{err: errors.New("context canceled")}
	res := newClient(t, httpClient, alphavantage.WithLimiter(limiter)).
		ExchangeRate(t.Context(), provider.NewInstrument("BTC", "USD"))

	require.Equal(t, provider.MalformedOrMissing, res.Outcome)
	require.ErrorIs(t, res.Err, provider.ErrMalformed)
	require.Equal(t, 1, limiter.Calls())
}

func TestQuery_RejectedBeforeGate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	limiter := &countingLimiter{}
	client := newClient(t, httpClient, alphavantage.WithLimiter(limiter))

	// Act: an unsupported interval and an incomplete instrument
	res := client.Intraday(t.Context(), provider.NewInstrument("BTC", "USD"), "2min")
	require.Equal(t, provider.MalformedOrMissing, res.Outcome)
	res = client.ExchangeRate(t.Context(), provider.Instrument{Base: "BTC"})
	require.Equal(t, provider.MalformedOrMissing, res.Outcome)

	// Assert: no gate slot was consumed
	require.Zero(t, limiter.Calls())
}

func TestQuery_PayloadsAreIndependent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, exchangeRateBody), nil
		}).
		Times(2)

	client := newClient(t, httpClient)
	inst := provider.NewInstrument("BTC", "USD")

	first := client.ExchangeRate(t.Context(), inst)
	first.Payload["Realtime Currency Exchange Rate"] = "mutated"
	second := client.ExchangeRate(t.Context(), inst)

	_, err := alphavantage.NormalizeQuote(second.Payload)
	require.NoError(t, err)
}
