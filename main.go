package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis"
	"github.com/joho/godotenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/portalcms/portal-backend/db"
	"github.com/portalcms/portal-backend/log"
	"github.com/portalcms/portal-backend/media"
	"github.com/portalcms/portal-backend/router"
)

func main() {
	log.Info.Printf("Starting Portal Backend...\n")

	godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		log.Error.Fatalln("$PORT not set")
	}

	dbs, err := db.Init()
	if err != nil {
		log.Error.Fatalf("%v: %s", err, err)
	}

	if redisAddr := os.Getenv("REDIS_URL"); redisAddr != "" {
		opts, err := redis.ParseURL(redisAddr)
		if err != nil {
			log.Error.Fatalf("%v: %s", err, err)
		}
		dbs.Redis = redis.NewClient(opts)
	} else {
		log.Warn.Printf("$REDIS_URL not set, render cache disabled\n")
	}

	mediaDir := os.Getenv("MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = "./media"
	}
	store, err := media.NewStore(mediaDir)
	if err != nil {
		log.Error.Fatalf("%v: %s", err, err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	render := func(src string) (string, error) {
		var buf bytes.Buffer
		if err := md.Convert([]byte(src), &buf); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	r := router.Init(dbs, store, render)

	err = http.ListenAndServe(fmt.Sprintf(":%s", port), r)
	if err != nil {
		log.Error.Fatalf("%v: %s", err, err)
	}
}
