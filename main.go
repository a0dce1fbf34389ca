// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package main

import "github.com/tejiriaustin/resource-monitor/cmd"

func main() {
	cmd.Execute()
}
