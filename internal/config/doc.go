// Package config provides configuration parsing for spanav.
//
// The configuration is stored in spanav.json (or spanav.yaml) at the site
// root. Values may reference environment variables (${VAR}); a .env file
// next to the configuration is loaded first, and SPANAV_* variables
// override individual settings.
//
// # Configuration File Structure
//
//	{
//	  "router": {
//	    "base": "/site",
//	    "origin": "https://www.example.com",
//	    "container": "main",
//	    "transition": "300ms",
//	    "cachePages": true,
//	    "cacheSize": 10,
//	    "cachePolicy": "fifo"
//	  },
//	  "transport": {
//	    "kind": "s3",
//	    "timeout": "10s",
//	    "s3": {"bucket": "site", "region": "eu-west-1"}
//	  },
//	  "preload": {"enabled": true, "rateLimit": 5, "concurrency": 2},
//	  "dev": {"host": "localhost", "port": 3000, "root": "public"},
//	  "log": {"level": "info", "file": "spanav.log"},
//	  "metrics": {"enabled": true, "path": "/metrics"},
//	  "cdp": {"url": "http://127.0.0.1:9222"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Port:", cfg.Dev.Port)
package config
