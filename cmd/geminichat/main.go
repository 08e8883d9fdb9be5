package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/OEvortex/Gemini-Chat-API/geminiwebapi"
	"github.com/OEvortex/Gemini-Chat-API/internal/browser"
	"github.com/OEvortex/Gemini-Chat-API/internal/config"
	"github.com/OEvortex/Gemini-Chat-API/internal/logging"
	log "github.com/sirupsen/logrus"
)

func init() {
	logging.Setup()
}

func main() {
	var login bool
	var configPath string
	var prompt string
	var conversation string
	var filePath string
	var saveImages bool

	flag.BoolVar(&login, "login", false, "Open the Gemini app page to log in and export cookies")
	flag.StringVar(&configPath, "config", "", "Configure File Path")
	flag.StringVar(&prompt, "prompt", "", "Prompt to send")
	flag.StringVar(&conversation, "conversation", "", "Conversation name to thread onto")
	flag.StringVar(&filePath, "file", "", "File to upload with the prompt")
	flag.BoolVar(&saveImages, "save-images", false, "Save images from the reply")

	flag.Parse()

	if login {
		if err := browser.OpenURL(geminiwebapi.DefaultEndpoints().Init); err != nil {
			log.Fatalf("failed to open browser: %v", err)
		}
		fmt.Println("Log in, then export the __Secure-1PSID and __Secure-1PSIDTS cookies to your cookie file.")
		return
	}

	var err error
	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		var wd string
		wd, err = os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		cfg, err = config.LoadConfig(path.Join(wd, "config.yaml"))
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if cfg.LogFile != "" {
		if err = logging.ConfigureOutput(cfg.LogFile); err != nil {
			log.Fatalf("failed to configure log output: %v", err)
		}
	}

	if prompt == "" {
		log.Fatal("no prompt given; use -prompt")
	}

	psid, psidts, err := geminiwebapi.LoadCookieFile(cfg.CookieFile)
	if err != nil {
		log.Fatalf("failed to load cookies: %v", err)
	}

	opts := []geminiwebapi.Option{
		geminiwebapi.WithCookieSnapshot(cfg.CookieFile),
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, geminiwebapi.WithProxy(cfg.ProxyURL))
	}
	if cfg.ConversationStore != "" {
		opts = append(opts, geminiwebapi.WithConversationStore(cfg.ConversationStore))
	}
	if cfg.Model != "" {
		model, errModel := geminiwebapi.ModelFromName(cfg.Model)
		if errModel != nil {
			log.Fatalf("unknown model: %v", errModel)
		}
		opts = append(opts, geminiwebapi.WithModel(model))
	}

	bot, err := geminiwebapi.NewChatbot(psid, psidts, opts...)
	if err != nil {
		log.Fatalf("failed to initialize client: %v", err)
	}

	if cfg.WatchCookieFile {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if errWatch := geminiwebapi.WatchCredentials(ctx, cfg.CookieFile, bot.Client()); errWatch != nil && errWatch != context.Canceled {
				log.Warnf("credential watcher stopped: %v", errWatch)
			}
		}()
	}

	session := bot.StartChat(conversation)
	var askOpts []geminiwebapi.AskOption
	if filePath != "" {
		askOpts = append(askOpts, geminiwebapi.WithFile(filePath))
	}
	out, err := session.SendMessage(prompt, askOpts...)
	if err != nil {
		log.Fatalf("ask failed: %v", err)
	}

	fmt.Println(out.Text())
	if th := out.Thoughts(); th != nil && *th != "" {
		log.Debugf("thoughts: %s", *th)
	}

	if saveImages && len(out.Images()) > 0 {
		paths, errSave := session.SaveImages(cfg.DownloadDir)
		if errSave != nil {
			log.Warnf("image save failed: %v", errSave)
		}
		for _, p := range paths {
			log.Infof("saved %s", p)
		}
	}
}
