// Package config loads and validates the nodeops configuration file.
//
// A minimal file only overrides what differs from DefaultConfig:
//
//	tool:
//	  binary: /usr/local/bin/ansible
//	scripts:
//	  hostCheck: /opt/nodeops/scripts/host_check.sh
//	timeouts:
//	  long: 20m
//	runner:
//	  mode: ssh
//	  ssh:
//	    host: bastion.internal
//	    user: deploy
//	    privateKey: /home/deploy/.ssh/id_ed25519
//
// Durations are Go duration strings. The resulting Config is handed to the
// orchestration engine by value; nothing in this package is global state.
package config
