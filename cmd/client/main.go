package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	chathttp "github.com/dkeye/Chat/internal/adapters/http"
	"github.com/dkeye/Chat/internal/client"
	"github.com/dkeye/Chat/internal/client/capture"
	"github.com/dkeye/Chat/internal/domain"
)

// Terminal client: plain lines are sent to the selected room,
// "/join <room id>" switches rooms and "/leave" deselects. With CHATCLI_MIC
// pointing at an Ogg/Opus stream, "/rec" starts a voice message and "/stop"
// sends it.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	v := viper.New()
	v.SetEnvPrefix("CHATCLI")
	v.AutomaticEnv()
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("room", "")
	v.SetDefault("token", "")
	v.SetDefault("history_limit", client.DefaultHistoryLimit)
	v.SetDefault("mic", "")

	if err := run(ctx, v); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("client failed")
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	base := strings.TrimRight(v.GetString("server"), "/")
	baseURL, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	if tok := v.GetString("token"); tok != "" {
		jar.SetCookies(baseURL, []*http.Cookie{{Name: chathttp.TokenCookie, Value: tok, Path: "/"}})
	}
	hc := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	// establishes the guest identity cookie when no token is configured
	resp, err := hc.Get(base + "/api/me")
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	_ = resp.Body.Close()

	header := http.Header{}
	for _, c := range jar.Cookies(baseURL) {
		header.Add("Cookie", c.String())
	}
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/api/ws"

	cfg := client.Config{
		Dial:         client.WebSocketDialer(wsURL, header, log.Logger),
		History:      client.NewHistoryClient(base, hc),
		HistoryLimit: v.GetInt("history_limit"),
		Logger:       log.Logger,
	}
	if mic := v.GetString("mic"); mic != "" {
		cfg.Microphone = capture.OggSource{Path: mic}
	}
	s := client.NewSession(cfg)
	go render(ctx, s)

	go func() {
		if room := v.GetString("room"); room != "" {
			if err := s.Select(ctx, domain.RoomID(room)); err != nil {
				log.Warn().Err(err).Msg("select room")
			}
		}
		if err := readInput(ctx, s); err != nil {
			log.Warn().Err(err).Msg("input closed")
		}
	}()
	return s.Run(ctx)
}

func readInput(ctx context.Context, s *client.Session) error {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		var err error
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/join "):
			err = s.Select(ctx, domain.RoomID(strings.TrimSpace(strings.TrimPrefix(line, "/join "))))
		case line == "/leave":
			err = s.Deselect(ctx)
		case line == "/rec":
			err = s.BeginRecording(ctx)
		case line == "/stop":
			_, err = s.EndRecording(ctx)
		default:
			_, err = s.Send(ctx, line)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		}
	}
	return sc.Err()
}

func render(ctx context.Context, s *client.Session) {
	shown := make(map[domain.MessageID]struct{})
	var room domain.RoomID
	var notice string
	connected := true
	recording := false
	for {
		select {
		case <-ctx.Done():
			return
		case view := <-s.Updates():
			if view.Recording != recording {
				recording = view.Recording
				if recording {
					fmt.Println("-- recording, /stop to send")
				}
			}
			if view.Connected != connected {
				connected = view.Connected
				if !connected {
					fmt.Println("-- disconnected, reconnecting")
				} else {
					fmt.Println("-- connected")
				}
			}
			if view.Room != room {
				room = view.Room
				shown = make(map[domain.MessageID]struct{})
				if room != "" {
					fmt.Printf("-- room %s\n", room)
				}
			}
			for _, m := range view.Messages {
				if _, ok := shown[m.ID]; ok {
					continue
				}
				shown[m.ID] = struct{}{}
				if m.HasAudio() {
					fmt.Printf("[%d] %s: <voice %d bytes>\n", m.Seq, m.SenderName, len(m.Audio))
					continue
				}
				fmt.Printf("[%d] %s: %s\n", m.Seq, m.SenderName, m.Text)
			}
			if view.Notice != notice {
				notice = view.Notice
				if notice != "" {
					fmt.Fprintf(os.Stderr, "! %s\n", notice)
				}
			}
		}
	}
}
