package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tumapay/tumapay/internal/clock"
	"github.com/tumapay/tumapay/internal/config"
	"github.com/tumapay/tumapay/internal/server"
	"github.com/tumapay/tumapay/pkg/db"
	"github.com/tumapay/tumapay/pkg/log"
	"github.com/tumapay/tumapay/pkg/redis"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redis.Module,
		clock.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
