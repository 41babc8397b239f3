// Package main is the tanya CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/answer"
	"github.com/hyperjump/tanya/internal/cli"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/contextmgr"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/fetch"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/ocr"
	"github.com/hyperjump/tanya/internal/server"
	"github.com/hyperjump/tanya/internal/session"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/internal/watcher"
	"github.com/hyperjump/tanya/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tanya/config.yaml"
	userEnv           = "TANYA_USER"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence, and when neither exists the built-in
// defaults are used. Returns the config and the path that was loaded ("" for
// defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is normal; keys may come from the environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "chats":
		runChats()
	case "upload":
		runUpload()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("tanya version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and initializes components, exiting
// on failure.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	srv := server.NewServer(components.Registry, components.Store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	waitForSignal()
	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

// joinArgs joins positional args with spaces so multi-word questions work with
// or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after the positional arguments to the
// front so that flag.Parse sees them. The flag package stops at the first
// non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func defaultUser() string {
	return os.Getenv(userEnv)
}

func requireUser(user string) string {
	user = session.NormalizeEmail(user)
	if user == "" {
		fmt.Fprintf(os.Stderr, "A user is required: pass --user or set %s\n", userEnv)
		os.Exit(1)
	}
	return user
}

// resolveChat returns chatID when set, else the newest conversation, creating
// one when the user has none or newChat is set.
func resolveChat(ctx context.Context, sess *session.Session, chatID string, newChat bool) string {
	if chatID != "" {
		return chatID
	}
	if !newChat {
		if convs := sess.List(); len(convs) > 0 {
			return convs[0].ID
		}
	}
	return sess.New(ctx).ID
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = direct storage)")
	user := fs.String("user", defaultUser(), "user email (default $"+userEnv+")")
	chatID := fs.String("chat", "", "conversation id (default: newest conversation)")
	newChat := fs.Bool("new", false, "start a new conversation")
	topK := fs.Int("top-k", 0, "number of context chunks to retrieve (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := joinArgs(fs.Args())
	if question == "" {
		fmt.Println("Usage: tanya ask [flags] <question>")
		os.Exit(1)
	}
	email := requireUser(*user)
	format := cli.ParseFormat(*outputFormat)
	req := models.AskRequest{Question: question, TopK: *topK}

	var resp *models.AskResponse
	var err error
	if *serverURL != "" {
		resp, err = askViaHTTP(*serverURL, email, *chatID, *newChat, req)
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		sess, serr := components.Registry.Get(ctx, email)
		if serr != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", serr)
			os.Exit(1)
		}
		resp, err = sess.Ask(ctx, resolveChat(ctx, sess, *chatID, *newChat), req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func userURL(serverURL, email string) string {
	return strings.TrimRight(serverURL, "/") + "/api/v1/users/" + url.PathEscape(email)
}

// askViaHTTP asks through a running server, which avoids contending for the
// profile store with it.
func askViaHTTP(serverURL, email, chatID string, newChat bool, req models.AskRequest) (*models.AskResponse, error) {
	base := userURL(serverURL, email)
	if chatID == "" {
		var list struct {
			Conversations []models.ConversationSummary `json:"conversations"`
		}
		if !newChat {
			if err := getJSON(base+"/conversations", &list); err != nil {
				return nil, err
			}
		}
		if len(list.Conversations) > 0 {
			chatID = list.Conversations[0].ID
		} else {
			var created models.ConversationSummary
			if err := postJSON(base+"/conversations", nil, http.StatusCreated, &created); err != nil {
				return nil, err
			}
			chatID = created.ID
		}
	}
	var resp models.AskResponse
	if err := postJSON(base+"/conversations/"+url.PathEscape(chatID)+"/ask", req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func getJSON(u string, out interface{}) error {
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusOK, out)
}

func postJSON(u string, body interface{}, want int, out interface{}) error {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	resp, err := http.Post(u, "application/json", r)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, want, out)
}

func decodeResponse(resp *http.Response, want int, out interface{}) error {
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runChats() {
	fs := flag.NewFlagSet("chats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", defaultUser(), "user email (default $"+userEnv+")")
	find := fs.String("find", "", "search conversation titles, transcripts and sources")
	limit := fs.Int("limit", 20, "maximum search results")
	remove := fs.String("delete", "", "delete the conversation with this id")
	newChat := fs.Bool("new", false, "create a new conversation")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	email := requireUser(*user)
	format := cli.ParseFormat(*outputFormat)
	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	sess, err := components.Registry.Get(ctx, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *remove != "":
		if err := sess.Delete(ctx, *remove); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Conversation deleted: %s\n", *remove)
	case *newChat:
		fmt.Printf("Conversation created: %s\n", sess.New(ctx).ID)
	case *find != "":
		res, err := sess.Find(ctx, *find, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteFindResult(os.Stdout, res, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := cli.WriteConversations(os.Stdout, sess.List(), format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	}
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", defaultUser(), "user email (default $"+userEnv+")")
	chatID := fs.String("chat", "", "conversation id (default: newest conversation)")
	newChat := fs.Bool("new", false, "upload into a new conversation")
	outputFormat := fs.String("output", "text", "output format: text or json")
	var links stringList
	fs.Var(&links, "link", "web page URL to add (repeatable)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() == 0 && len(links) == 0 {
		fmt.Println("Usage: tanya upload [flags] <file-or-directory>... [--link URL]...")
		os.Exit(1)
	}
	email := requireUser(*user)
	format := cli.ParseFormat(*outputFormat)
	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	sess, err := components.Registry.Get(ctx, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session: %v\n", err)
		os.Exit(1)
	}
	id := resolveChat(ctx, sess, *chatID, *newChat)

	report := &models.UploadReport{ConversationID: id, Files: []models.FileReport{}}
	if fs.NArg() > 0 {
		files, unreadable := indexer.ReadFiles(fs.Args(), cfg.Watch.Extensions)
		report.Files = append(report.Files, unreadable...)
		if len(files) > 0 {
			rep, err := sess.Upload(ctx, id, files)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
				os.Exit(1)
			}
			report.Files = append(report.Files, rep.Files...)
			report.Added += rep.Added
		}
	}
	if len(links) > 0 {
		rep, err := sess.AddLinks(ctx, id, links)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Adding links failed: %v\n", err)
			os.Exit(1)
		}
		report.Files = append(report.Files, rep.Files...)
		report.Added += rep.Added
	}
	if err := cli.WriteUploadReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	user := fs.String("user", defaultUser(), "user email (default $"+userEnv+")")
	chatID := fs.String("chat", "", "conversation id (default: newest conversation)")
	newChat := fs.Bool("new", false, "feed a new conversation")
	sync := fs.Bool("sync", true, "upload files already in the directories at start")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	email := requireUser(*user)
	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	dirs := fs.Args()
	if len(dirs) == 0 {
		dirs = cfg.Watch.Directories
	}
	if len(dirs) == 0 {
		fmt.Println("Usage: tanya watch [flags] <directory>... (or set watch.directories in config)")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess, err := components.Registry.Get(ctx, email)
	if err != nil {
		logger.Fatal("Failed to open session", zap.Error(err))
	}
	id := resolveChat(ctx, sess, *chatID, *newChat)

	opts := []watcher.Option{watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMillis) * time.Millisecond)}
	if cfg.Debug || *debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	w := watcher.New(dirs, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(), uploadHandler(sess, id, logger), opts...)
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	logger.Info("watching for new files",
		zap.Strings("directories", w.Roots()), zap.String("email", email), zap.String("conversation", id))
	if *sync {
		w.Sync(ctx)
	}
	waitForSignal()
	logger.Info("Shutting down...")
}

// uploadHandler uploads each delivered batch into conversation id.
func uploadHandler(sess *session.Session, id string, logger *zap.Logger) watcher.Handler {
	return func(ctx context.Context, paths []string) {
		files, unreadable := indexer.ReadFiles(paths, nil)
		for _, r := range unreadable {
			logger.Warn("watch read failed", zap.String("file", r.Name), zap.String("error", r.Error))
		}
		if len(files) == 0 {
			return
		}
		rep, err := sess.Upload(ctx, id, files)
		if err != nil {
			logger.Warn("watch upload failed", zap.String("conversation", id), zap.Error(err))
			return
		}
		for _, f := range rep.Files {
			if f.Error != "" {
				logger.Warn("watch file skipped", zap.String("file", f.Name), zap.String("error", f.Error))
			}
		}
		logger.Info("watch upload", zap.String("conversation", id),
			zap.Int("files", len(files)), zap.Int("chunks", rep.Added))
	}
}

// Components holds initialized services.
type Components struct {
	Store    storage.ProfileStore
	Embedder embedding.Embedder
	Registry *session.Registry
}

// Close releases the registry's sessions, the embedder and the store.
func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewProfileStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dims := embedder.Dimensions()

	vectorType, err := vector.Resolve(cfg.Vector.IndexType, dims)
	if err != nil {
		logger.Warn("failed to create vector index, falling back to memory",
			zap.String("requested_type", cfg.Vector.IndexType), zap.Error(err))
	}
	logger.Info("vector index selected",
		zap.String("type", string(vectorType)), zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	manager := contextmgr.New(store, embedder, contextmgr.WithLogger(logger))
	idx := indexer.NewIndexer(
		extract.NewExtractor(),
		newRecognizer(cfg.OCR, logger),
		fetch.NewFetcher(cfg.Fetch),
		cfg.Retrieval,
		indexer.WithLogger(logger),
	)
	registry := session.NewRegistry(session.Deps{
		Manager:   manager,
		Indexer:   idx,
		Generator: newGenerator(ctx, cfg.Answer, logger),
		NewIndex: func() (session.Index, error) {
			backend, err := vector.NewVectorIndex(string(vectorType), dims)
			if err != nil {
				return nil, err
			}
			return vector.NewChunkIndex(embedder, backend), nil
		},
		TopK:        cfg.Retrieval.TopK,
		Logger:      logger,
		MaxSessions: cfg.Server.MaxSessions,
	})

	return &Components{Store: store, Embedder: embedder, Registry: registry}, nil
}

// newEmbedder builds the configured embedder behind an LRU cache. A local
// model that cannot be loaded falls back to the hashing embedder.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	ec := cfg.Embedding
	var base embedding.Embedder
	switch ec.Provider {
	case "gemini":
		e, err := embedding.NewGeminiEmbedder(ctx, os.Getenv(ec.APIKeyEnv), ec.Model, ec.Dimensions, ec.Timeout())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		base = e
	case "hashing":
		base = embedding.NewHashingEmbedder(ec.Dimensions)
	default:
		e, err := embedding.NewONNXEmbedder(ec.ModelPath, ec.Dimensions, ec.MaxTokens)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, falling back to hashing embedder",
				zap.String("model_path", ec.ModelPath), zap.Error(err))
			base = embedding.NewHashingEmbedder(ec.Dimensions)
		} else {
			base = e
		}
	}
	cached, err := embedding.WithCache(base, ec.CacheSize)
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	logger.Info("embedder initialized", zap.String("provider", ec.Provider),
		zap.Int("dimensions", cached.Dimensions()), zap.Int("cache_size", ec.CacheSize))
	return cached, nil
}

func newRecognizer(cfg config.OCRConfig, logger *zap.Logger) ocr.Recognizer {
	if cfg.Disabled {
		return ocr.Disabled{}
	}
	t, err := ocr.NewTesseract(cfg.TesseractPath, cfg.Language, cfg.Timeout())
	if err != nil {
		logger.Warn("OCR unavailable; images are attached without text", zap.Error(err))
		return ocr.Disabled{}
	}
	return t
}

func newGenerator(ctx context.Context, cfg config.AnswerConfig, logger *zap.Logger) answer.Generator {
	g, err := answer.New(ctx, cfg, os.Getenv(cfg.APIKeyEnv))
	if err != nil {
		logger.Warn("answer generator unavailable, falling back to extractive answers",
			zap.String("provider", cfg.Provider), zap.Error(err))
		return answer.NewExtractive()
	}
	return g
}

func printUsage() {
	fmt.Println(`tanya - Ask questions about your documents

Usage:
  tanya server [flags]                 Start the HTTP server
  tanya ask [flags] <question>         Ask a question in a conversation
  tanya chats [flags]                  List, find, create or delete conversations
  tanya upload [flags] <path>...       Add files, directories or links to a conversation
  tanya watch [flags] [directory]...   Upload new files dropped into directories
  tanya version                        Show version
  tanya help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/tanya/config.yaml)
  --user string      User email (default: $TANYA_USER)
  --chat string      Conversation id (default: newest conversation)
  --new              Use a new conversation
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ask Flags:
  --top-k int        Number of context chunks to retrieve (default from config)
  --server string    Ask through a running server instead of direct storage

Chats Flags:
  --find string      Search titles, transcripts and sources (typo tolerant)
  --limit int        Maximum search results (default: 20)
  --delete string    Delete a conversation

Upload Flags:
  --link string      Web page URL to add (repeatable)

Watch Flags:
  --sync             Upload files already present at start (default: true)
  --debug            Enable debug logging

Environment:
  GEMINI_API_KEY     API key for the Gemini answer and embedding providers (.env is loaded)
  TANYA_USER         Default user email

Examples:
  tanya server
  tanya upload --new report.pdf data.csv
  tanya upload --link https://example.com/article
  tanya ask what does the report conclude
  tanya ask --chat 20240102030405 --output json "summarize the table"
  tanya chats --find invoices
  tanya watch ~/Inbox`)
}
