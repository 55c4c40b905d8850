package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shamil-creator/botik/schedule"
)

// startStatusServer exposes liveness and cache statistics for the
// operator. Disabled when status_addr is empty.
func startStatusServer(addr string, cache *schedule.Cache, store *Storage) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/status", func(c *gin.Context) {
		users, err := store.UserCount()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"cache": cache.Stats(),
			"users": users,
		})
	})

	go func() {
		if err := r.Run(addr); err != nil {
			log.Printf("ERROR: Status server stopped: %v", err)
		}
	}()
}
