package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           lingolens API
// @version         1.0
// @description     HTTP control surface for camera-to-flashcard language learning: model downloads, vision-language inference, translation, and card storage.
//
// @contact.name   lingolens maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
