package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"keyadmin/bot"
	"keyadmin/entity"
	"keyadmin/impl/auth"
	"keyadmin/impl/core"
	"keyadmin/internal/config"
	"keyadmin/internal/database"
	"keyadmin/internal/http-server/api"
	"keyadmin/internal/issuance"
	"keyadmin/internal/keystore"
	"keyadmin/internal/keystore/redisstore"
	"keyadmin/internal/metrics"
	"keyadmin/internal/plan"
	"keyadmin/internal/purge"
	"keyadmin/internal/token"
	"keyadmin/lib/logger"
	"keyadmin/lib/sl"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting keyadmin", slog.String("config", *configPath), slog.String("env", conf.Env))

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, conf.Telegram.AdminIds, log)
		if err != nil {
			log.Error("telegram bot", sl.Err(err))
		} else {
			level := logger.ParseLevel(conf.Telegram.MinLevel)
			tgBot.SetMinLogLevel(level)
			log = slog.New(logger.NewTelegramHandler(log.Handler(), tgBot, level))
			log.Info("telegram bot initialized", slog.Int("admins", len(conf.Telegram.AdminIds)))
		}
	}

	var m *metrics.Metrics
	if conf.Metrics.Enabled {
		m = metrics.New()
	}

	infra := api.Infra{}
	var remote keystore.Remote
	if conf.Redis.Enabled {
		client, err := redisstore.Connect(conf.Redis.URL, redisstore.Options{
			DialTimeout:  conf.Redis.DialTimeout,
			ReadTimeout:  conf.Redis.ReadTimeout,
			WriteTimeout: conf.Redis.WriteTimeout,
		})
		if err != nil {
			log.Error("redis", sl.Err(err))
			os.Exit(1)
		}
		rs := redisstore.New(client)
		defer func() { _ = rs.Close() }()
		remote = rs
		infra.Remote = rs
		log.Info("redis store enabled")
	} else {
		log.Warn("redis disabled; using local files only", slog.String("data_dir", conf.Store.DataDir))
	}

	store := keystore.New(remote, conf.Store.DataDir, log)
	ns := entity.NewNamespace(conf.Store.KeyPrefix)

	issuer := issuance.New(store, plan.NewResolver(store, ns, log), token.NewGenerator(conf.Token.Prefix), ns, log)
	purger := purge.New(store, ns, purge.ParseMatchMode(conf.Purge.SessionMatch), log)

	handler := core.New(issuer, purger, log)

	if m != nil {
		store.SetRecorder(m)
		handler.SetMetrics(m)
		infra.Metrics = m.Handler()
	}

	var users auth.Database
	if mongo := database.NewMongoClient(conf); mongo != nil {
		users = mongo
		handler.SetAuditLog(mongo)
		log.With(
			slog.String("host", conf.Mongo.Host),
			slog.String("port", conf.Mongo.Port),
			slog.String("database", conf.Mongo.Database),
		).Info("mongo client initialized")
	} else {
		log.Warn("mongo disabled; admin api will reject all tokens")
	}
	handler.SetAuthService(auth.New(users))

	if tgBot != nil {
		handler.SetNotifier(tgBot)
		tgBot.SetAuditReader(handler)
		go func() {
			if err := tgBot.Start(); err != nil {
				log.Error("telegram bot", sl.Err(err))
			}
		}()
		defer tgBot.Stop()
	}

	if err := api.New(conf, log, handler, infra); err != nil && err != http.ErrServerClosed {
		log.Error("server", sl.Err(err))
	}
	log.Error("service stopped")
}
