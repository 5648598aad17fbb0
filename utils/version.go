package utils

const Version = "0.1.0"
